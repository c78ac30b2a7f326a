package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sandmonv1 "sandmon/api/sandmon/v1"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Resolve returns the root pid of the sandbox started with the given name.
func (a *App) Resolve(ctx context.Context, name string, timeout time.Duration) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("sandbox name is required")
	}
	var pid int
	err := a.withClient(ctx, timeout, func(ctx context.Context, client sandmonv1.SandMonClient) error {
		resp, err := client.Resolve(ctx, wrapperspb.String(name))
		if err != nil {
			return fmt.Errorf("daemon resolve RPC failed: %w", err)
		}
		pid = int(resp.GetValue())
		return nil
	})
	return pid, err
}
