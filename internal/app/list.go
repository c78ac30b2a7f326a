package app

import (
	"context"
	"fmt"
	"time"

	sandmonv1 "sandmon/api/sandmon/v1"

	"google.golang.org/protobuf/types/known/emptypb"
)

// ListParams defines filters and timeout.
type ListParams struct {
	Filters ListFilters
	Timeout time.Duration
}

// List fetches the sandboxes matching the provided filters.
func (a *App) List(ctx context.Context, params ListParams) ([]Sandbox, error) {
	filters, err := params.Filters.normalize()
	if err != nil {
		return nil, err
	}

	var out []Sandbox
	err = a.withClient(ctx, params.Timeout, func(ctx context.Context, client sandmonv1.SandMonClient) error {
		resp, err := client.List(ctx, &emptypb.Empty{})
		if err != nil {
			return fmt.Errorf("daemon list RPC failed: %w", err)
		}
		items, err := sandmonv1.Structs(resp)
		if err != nil {
			return fmt.Errorf("decode list reply: %w", err)
		}
		out = make([]Sandbox, 0, len(items))
		for _, it := range items {
			sb := sandboxFromWire(sandmonv1.SandboxFromStruct(it))
			if filters.match(sb) {
				out = append(out, sb)
			}
		}
		return nil
	})
	return out, err
}
