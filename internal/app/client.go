package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	sandmonv1 "sandmon/api/sandmon/v1"
	"sandmon/internal/daemon"
)

var (
	daemonIsRunning  = daemon.IsRunning
	dialDaemonClient = dialDaemon
)

func dialDaemon(ctx context.Context) (sandmonv1.SandMonClient, io.Closer, error) {
	client, conn, err := daemon.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, conn, nil
}

func resetDaemonDeps() {
	daemonIsRunning = daemon.IsRunning
	dialDaemonClient = dialDaemon
}

func (a *App) withClient(ctx context.Context, timeout time.Duration, fn func(context.Context, sandmonv1.SandMonClient) error) error {
	if timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if !daemonIsRunning() {
		return errors.New("daemon is not running")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, conn, err := dialDaemonClient(ctx)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	if conn != nil {
		defer conn.Close()
	}

	return fn(ctx, client)
}
