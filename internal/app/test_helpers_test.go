package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	sandmonv1 "sandmon/api/sandmon/v1"
)

type fakeConn struct {
	invoke func(ctx context.Context, method string, args interface{}, reply interface{}, opts ...grpc.CallOption) error
}

func (f *fakeConn) Invoke(ctx context.Context, method string, args interface{}, reply interface{}, opts ...grpc.CallOption) error {
	if f.invoke != nil {
		return f.invoke(ctx, method, args, reply, opts...)
	}
	return nil
}

func (f *fakeConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) Close() error { return nil }

func stubDaemon(t *testing.T, running bool, dial func(context.Context) (sandmonv1.SandMonClient, io.Closer, error)) {
	t.Helper()
	resetDaemonDeps()
	daemonIsRunning = func() bool { return running }
	if dial == nil {
		dial = func(context.Context) (sandmonv1.SandMonClient, io.Closer, error) {
			return nil, nil, errors.New("dial not stubbed")
		}
	}
	dialDaemonClient = dial
	t.Cleanup(resetDaemonDeps)
}

// routeDaemon stubs a running daemon whose RPCs are answered by handlers
// keyed on the full method name.
func routeDaemon(t *testing.T, handlers map[string]func(args, reply interface{}) error) {
	t.Helper()
	stubDaemon(t, true, func(context.Context) (sandmonv1.SandMonClient, io.Closer, error) {
		conn := &fakeConn{
			invoke: func(ctx context.Context, method string, args interface{}, reply interface{}, opts ...grpc.CallOption) error {
				h, ok := handlers[method]
				if !ok {
					t.Fatalf("unexpected method %s", method)
				}
				return h(args, reply)
			},
		}
		return sandmonv1.NewSandMonClient(conn), conn, nil
	})
}

func encodeSandboxes(t *testing.T, sbs ...sandmonv1.Sandbox) *structpb.ListValue {
	t.Helper()
	items := make([]*structpb.Struct, 0, len(sbs))
	for _, sb := range sbs {
		st, err := sb.ToStruct()
		if err != nil {
			t.Fatalf("encode sandbox: %v", err)
		}
		items = append(items, st)
	}
	return sandmonv1.ListOf(items)
}
