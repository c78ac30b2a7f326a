package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sandmonv1 "sandmon/api/sandmon/v1"
	"sandmon/internal/procfs"
	"sandmon/internal/ptable"
	"sandmon/internal/registry"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// service implements the SandMon gRPC service backed by the registry.
type service struct {
	sandmonv1.UnimplementedSandMonServer

	reg *registry.Registry
	log *slog.Logger
	// fatal is called when a refresh finds the process listing gone.
	fatal func(error)
}

func newService(reg *registry.Registry, logger *slog.Logger, fatal func(error)) *service {
	return &service{reg: reg, log: logger, fatal: fatal}
}

func (s *service) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("pong"), nil
}

func (s *service) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	sbs := s.reg.List(registry.ListFilter{})
	items := make([]*structpb.Struct, 0, len(sbs))
	for i := range sbs {
		st, err := toWire(sbs[i]).ToStruct()
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode sandbox %d: %v", sbs[i].PID, err)
		}
		items = append(items, st)
	}
	return sandmonv1.ListOf(items), nil
}

func (s *service) Stats(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	pid := int(req.GetValue())
	if pid <= 0 {
		return nil, status.Error(codes.InvalidArgument, "pid must be positive")
	}
	sb, err := s.reg.Stats(pid)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := toWire(sb).ToStruct()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode sandbox %d: %v", pid, err)
	}
	return st, nil
}

func (s *service) Resolve(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int32Value, error) {
	pid, err := s.reg.Resolve(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int32(int32(pid)), nil
}

func (s *service) Tree(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	pid := int(req.GetValue())
	if pid <= 0 {
		return nil, status.Error(codes.InvalidArgument, "pid must be positive")
	}
	members, err := s.reg.Tree(pid)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]*structpb.Struct, 0, len(members))
	for _, m := range members {
		st, err := sandmonv1.Member{
			PID:    int32(m.PID),
			Parent: int32(m.Parent),
			Level:  uint32(m.Level),
			Cmd:    m.Cmd,
		}.ToStruct()
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode member %d: %v", m.PID, err)
		}
		items = append(items, st)
	}
	return sandmonv1.ListOf(items), nil
}

func (s *service) Refresh(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.reg.Refresh(); err != nil {
		s.log.Error("refresh on request failed", "err", err)
		if errors.Is(err, procfs.ErrProcUnavailable) && s.fatal != nil {
			// The handler must return before the server is stopped.
			go s.fatal(err)
		}
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ptable.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, procfs.ErrProcUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.InvalidArgument, err.Error())
	}
}

func toWire(sb registry.Sandbox) sandmonv1.Sandbox {
	return sandmonv1.Sandbox{
		PID:        int32(sb.PID),
		Name:       sb.Name,
		UID:        sb.UID,
		User:       sb.User,
		Cmd:        sb.Cmd,
		StartTicks: sb.StartTicks,
		Started:    unixOrZero(sb.Started),
		CPUUser:    sb.CPU.User,
		CPUSystem:  sb.CPU.System,
		CPUPercent: sb.CPUPercent,
		Resident:   sb.Resident,
		Shared:     sb.Shared,
		RxBytes:    sb.Net.RxBytes,
		TxBytes:    sb.Net.TxBytes,
		RxRate:     sb.RxRate,
		TxRate:     sb.TxRate,
		Deepest:    int32(sb.Deepest),
		Members:    int32(sb.Members),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
