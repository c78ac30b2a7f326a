package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	sandmonv1 "sandmon/api/sandmon/v1"
	"sandmon/internal/config"
	"sandmon/internal/procfs"
	"sandmon/internal/registry"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
)

// exit is swapped in tests.
var exit = os.Exit

// Server wraps the gRPC server, its UNIX listener and the refresh loop.
type Server struct {
	ln     net.Listener
	gs     *grpc.Server
	path   string
	log    *slog.Logger
	reg    *registry.Registry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Close stops the server and unlinks the socket
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.gs != nil {
		s.gs.GracefulStop()
	}
	s.wg.Wait()
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return RemovePID()
}

// Registry exposes the catalog served by s.
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// StartDaemon loads the configuration at configPath and starts serving.
func StartDaemon(configPath string) (*Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return Start(cfg)
}

// Start performs the first refresh, binds the UNIX socket, serves the
// SandMon service and refreshes every cfg.RefreshInterval until Close.
func Start(cfg config.Config) (*Server, error) {
	logger := cfg.NewLogger()
	reg, err := registry.New(registry.Options{
		Reader:     procfs.NewReader(cfg.ProcRoot, cfg.ListRetryDelay),
		Manager:    cfg.ManagerName,
		ProxyPath:  cfg.ProxyPath,
		MonitorPID: cfg.MonitorPID,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if err := reg.Refresh(); err != nil {
		return nil, fmt.Errorf("initial refresh: %w", err)
	}

	if err := EnsureRuntimeDir(); err != nil {
		return nil, err
	}
	path := SocketPath()

	// If stale socket file exists but daemon is not running, remove it
	if _, err := os.Stat(path); err == nil && !IsRunning() {
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, err
	}

	gs := grpc.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{ln: ln, gs: gs, path: path, log: logger, reg: reg, cancel: cancel}
	sandmonv1.RegisterSandMonServer(gs, newService(reg, logger, s.fatal))

	if err := WritePID(os.Getpid()); err != nil {
		s.Close()
		return nil, err
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := gs.Serve(ln); err != nil {
			logger.Error("grpc serve stopped", "err", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		refreshLoop(ctx, reg, cfg.RefreshInterval, logger, s.fatal)
	}()

	logger.Info("daemon started", "socket", path, "pid", os.Getpid(), "manager", cfg.ManagerName, "interval", cfg.RefreshInterval)
	return s, nil
}

// fatal shuts down after the process listing became unreadable, either in
// the refresh loop or in a Refresh request.
func (s *Server) fatal(err error) {
	s.log.Error("process listing unavailable, exiting", "err", err)
	if s.gs != nil {
		s.gs.Stop()
	}
	_ = os.Remove(s.path)
	_ = RemovePID()
	exit(1)
}

type refresher interface {
	Refresh() error
}

func refreshLoop(ctx context.Context, r refresher, interval time.Duration, logger *slog.Logger, fatal func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := r.Refresh()
		if err == nil {
			continue
		}
		if errors.Is(err, procfs.ErrProcUnavailable) {
			fatal(err)
			return
		}
		logger.Warn("refresh failed", "err", err)
	}
}

// StopRunningDaemon sends a termination signal to the currently running daemon if any.
func StopRunningDaemon(force bool) error {
	pid, err := RunningPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if IsRunning() {
				return fmt.Errorf("daemon is running but PID file %q is missing; stop it manually", PIDPath())
			}
			return nil
		}
		return fmt.Errorf("unable to read daemon PID: %w", err)
	}
	if pid == os.Getpid() {
		return errors.New("refusing to stop current process")
	}
	if err := sendSignal(pid, unix.SIGTERM); err != nil {
		return err
	}
	if waitForShutdown(3 * time.Second) {
		return nil
	}
	if !force {
		return fmt.Errorf("daemon process %d did not exit after SIGTERM", pid)
	}
	if err := sendSignal(pid, unix.SIGKILL); err != nil {
		return err
	}
	if waitForShutdown(2 * time.Second) {
		return nil
	}
	return fmt.Errorf("daemon process %d did not exit after SIGKILL", pid)
}

func sendSignal(pid int, sig unix.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			_ = RemovePID()
			return nil
		}
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	return nil
}

func waitForShutdown(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !IsRunning() {
			_ = RemovePID()
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}
