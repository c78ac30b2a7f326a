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

// StatsParams selects one sandbox by root pid or by name.
type StatsParams struct {
	PID     int
	Name    string
	Timeout time.Duration
}

// Stats returns the usage of one sandbox. A name is resolved to its root
// pid first.
func (a *App) Stats(ctx context.Context, params StatsParams) (Sandbox, error) {
	name := strings.TrimSpace(params.Name)
	switch {
	case params.PID < 0:
		return Sandbox{}, fmt.Errorf("invalid pid: %d", params.PID)
	case params.PID > 0 && name != "":
		return Sandbox{}, errors.New("pass either a pid or a name, not both")
	case params.PID == 0 && name == "":
		return Sandbox{}, errors.New("a pid or a name is required")
	}

	var sb Sandbox
	err := a.withClient(ctx, params.Timeout, func(ctx context.Context, client sandmonv1.SandMonClient) error {
		pid := int32(params.PID)
		if name != "" {
			resp, err := client.Resolve(ctx, wrapperspb.String(name))
			if err != nil {
				return fmt.Errorf("daemon resolve RPC failed: %w", err)
			}
			pid = resp.GetValue()
		}
		resp, err := client.Stats(ctx, wrapperspb.Int32(pid))
		if err != nil {
			return fmt.Errorf("daemon stats RPC failed: %w", err)
		}
		sb = sandboxFromWire(sandmonv1.SandboxFromStruct(resp))
		return nil
	})
	return sb, err
}
