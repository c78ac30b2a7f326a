package app

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	sandmonv1 "sandmon/api/sandmon/v1"
)

func TestAppStatsValidatesSelector(t *testing.T) {
	app := New(Options{})
	cases := []struct {
		params StatsParams
		want   string
	}{
		{StatsParams{}, "a pid or a name is required"},
		{StatsParams{PID: -1}, "invalid pid: -1"},
		{StatsParams{PID: 3, Name: "web"}, "pass either a pid or a name, not both"},
	}
	for _, tc := range cases {
		if _, err := app.Stats(context.Background(), tc.params); err == nil || err.Error() != tc.want {
			t.Fatalf("%+v: expected %q, got %v", tc.params, tc.want, err)
		}
	}
}

func statsHandler(t *testing.T, wantPID int32) func(args, reply interface{}) error {
	return func(args, reply interface{}) error {
		if got := args.(*wrapperspb.Int32Value).GetValue(); got != wantPID {
			t.Fatalf("expected stats for %d, got %d", wantPID, got)
		}
		st, err := sandmonv1.Sandbox{PID: wantPID, Name: "web", CPUUser: 10, CPUSystem: 3, CPUPercent: 12.5, Deepest: 12}.ToStruct()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		proto.Merge(reply.(*structpb.Struct), st)
		return nil
	}
}

func TestAppStatsByPID(t *testing.T) {
	routeDaemon(t, map[string]func(args, reply interface{}) error{
		sandmonv1.SandMon_Stats_FullMethodName: statsHandler(t, 10),
	})

	sb, err := New(Options{}).Stats(context.Background(), StatsParams{PID: 10, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.PID != 10 || sb.CPUUser != 10 || sb.CPUSystem != 3 || sb.CPUPercent != 12.5 || sb.Deepest != 12 {
		t.Fatalf("unexpected sandbox: %+v", sb)
	}
}

func TestAppStatsByNameResolvesFirst(t *testing.T) {
	var order []string
	stats := statsHandler(t, 42)
	routeDaemon(t, map[string]func(args, reply interface{}) error{
		sandmonv1.SandMon_Resolve_FullMethodName: func(args, reply interface{}) error {
			order = append(order, "resolve")
			if name := args.(*wrapperspb.StringValue).GetValue(); name != "web" {
				t.Fatalf("unexpected name %q", name)
			}
			reply.(*wrapperspb.Int32Value).Value = 42
			return nil
		},
		sandmonv1.SandMon_Stats_FullMethodName: func(args, reply interface{}) error {
			order = append(order, "stats")
			return stats(args, reply)
		},
	})

	sb, err := New(Options{}).Stats(context.Background(), StatsParams{Name: " web ", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sb.PID != 42 {
		t.Fatalf("expected pid 42, got %d", sb.PID)
	}
	if len(order) != 2 || order[0] != "resolve" || order[1] != "stats" {
		t.Fatalf("unexpected call order %v", order)
	}
}

func TestAppStatsNotFound(t *testing.T) {
	routeDaemon(t, map[string]func(args, reply interface{}) error{
		sandmonv1.SandMon_Stats_FullMethodName: func(args, reply interface{}) error {
			return status.Error(codes.NotFound, "sandbox 7: not found")
		},
	})

	_, err := New(Options{}).Stats(context.Background(), StatsParams{PID: 7, Timeout: time.Second})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound to survive wrapping, got %v", err)
	}
}
