package app

import (
	"context"
	"fmt"
	"time"

	sandmonv1 "sandmon/api/sandmon/v1"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Tree lists the processes of the sandbox rooted at pid, depth first.
func (a *App) Tree(ctx context.Context, pid int, timeout time.Duration) ([]Member, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid: %d", pid)
	}
	var out []Member
	err := a.withClient(ctx, timeout, func(ctx context.Context, client sandmonv1.SandMonClient) error {
		resp, err := client.Tree(ctx, wrapperspb.Int32(int32(pid)))
		if err != nil {
			return fmt.Errorf("daemon tree RPC failed: %w", err)
		}
		items, err := sandmonv1.Structs(resp)
		if err != nil {
			return fmt.Errorf("decode tree reply: %w", err)
		}
		out = make([]Member, 0, len(items))
		for _, it := range items {
			out = append(out, memberFromWire(sandmonv1.MemberFromStruct(it)))
		}
		return nil
	})
	return out, err
}

// Refresh asks the daemon to rescan processes now.
func (a *App) Refresh(ctx context.Context, timeout time.Duration) error {
	return a.withClient(ctx, timeout, func(ctx context.Context, client sandmonv1.SandMonClient) error {
		if _, err := client.Refresh(ctx, &emptypb.Empty{}); err != nil {
			return fmt.Errorf("daemon refresh RPC failed: %w", err)
		}
		return nil
	})
}
