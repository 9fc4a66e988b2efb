package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
	"github.com/AltairaLabs/async-cargo-mcp/internal/shellpool"
)

// Server implements the Operations service over a monitor and reports
// shell pool health through the standard gRPC health service
type Server struct {
	monitor     *monitor.Monitor
	shells      *shellpool.Manager
	health      *health.Server
	waitTimeout time.Duration
	logger      *slog.Logger
}

// NewServer creates the operations server. shells may be nil.
func NewServer(mon *monitor.Monitor, shells *shellpool.Manager, waitTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if waitTimeout <= 0 {
		waitTimeout = config.DefaultWaitTimeout
	}
	s := &Server{
		monitor:     mon,
		shells:      shells,
		health:      health.NewServer(),
		waitTimeout: waitTimeout,
		logger:      logger,
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(OperationsService, healthpb.HealthCheckResponse_SERVING)
	if shells != nil && shells.Enabled() {
		s.health.SetServingStatus(ShellPoolService, healthpb.HealthCheckResponse_SERVING)
		shells.SetHealthReporter(s.reportShellHealth)
	} else {
		s.health.SetServingStatus(ShellPoolService, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// RegisterWithServer registers the operations and health services
func (s *Server) RegisterWithServer(g *grpc.Server) {
	RegisterOperationsServer(g, s)
	healthpb.RegisterHealthServer(g, s.health)
}

func (s *Server) reportShellHealth(healthy bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ShellPoolService, st)
}

// Wait blocks until the operations in "operation_ids" finish, bounded by
// "timeout_secs". No ids means every active operation.
func (s *Server) Wait(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ids := stringList(in.GetFields()["operation_ids"])

	timeout := s.waitTimeout
	if secs := in.GetFields()["timeout_secs"].GetNumberValue(); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	var ops []monitor.OperationInfo
	if len(ids) == 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ops = s.monitor.WaitForAllOperations(waitCtx)
	} else {
		ops = s.monitor.WaitForOperations(ctx, ids, timeout)
	}
	return operationsStruct(ops)
}

// Status returns one operation ("operation_id") or every live and
// historical operation
func (s *Server) Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := strings.TrimSpace(in.GetFields()["operation_id"].GetStringValue())
	if id == "" {
		ops := s.monitor.GetOperations(nil)
		seen := make(map[string]bool, len(ops))
		for _, op := range ops {
			seen[op.ID] = true
		}
		for _, op := range s.monitor.History() {
			if !seen[op.ID] {
				ops = append(ops, op)
			}
		}
		return operationsStruct(ops)
	}

	op, ok := s.monitor.Get(id)
	if !ok {
		return nil, status.Errorf(codes.NotFound, config.MsgOperationNotFound, id)
	}
	return operationsStruct([]monitor.OperationInfo{op})
}

// Cancel cancels "operation_id", or every active operation in "working_directory"
func (s *Server) Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	id := strings.TrimSpace(fields["operation_id"].GetStringValue())
	dir := strings.TrimSpace(fields["working_directory"].GetStringValue())

	var cancelled []string
	switch {
	case id != "":
		err := s.monitor.Cancel(id)
		switch {
		case errors.Is(err, monitor.ErrOperationNotFound):
			return nil, status.Errorf(codes.NotFound, config.MsgOperationNotFound, id)
		case errors.Is(err, monitor.ErrInvalidTransition):
			return nil, status.Errorf(codes.FailedPrecondition, "operation %s already finished", id)
		case err != nil:
			return nil, status.Error(codes.Internal, err.Error())
		}
		cancelled = []string{id}
	case dir != "":
		cancelled = s.monitor.CancelByWorkingDirectory(dir)
	default:
		return nil, status.Error(codes.InvalidArgument, "operation_id or working_directory is required")
	}

	s.logger.Info("Operations cancelled over gRPC", "count", len(cancelled))
	list := make([]any, len(cancelled))
	for i, c := range cancelled {
		list[i] = c
	}
	return structpb.NewStruct(map[string]any{"cancelled": list})
}

// Stats returns monitor statistics and shell pool usage
func (s *Server) Stats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	st := s.monitor.Statistics()
	out := map[string]any{
		"total":               st.Total,
		"pending":             st.Pending,
		"running":             st.Running,
		"completed":           st.Completed,
		"failed":              st.Failed,
		"cancelled":           st.Cancelled,
		"timed_out":           st.TimedOut,
		"average_duration_ms": float64(st.AverageDuration.Milliseconds()),
		"success_rate":        st.SuccessRate(),
		"failure_rate":        st.FailureRate(),
		"history":             len(s.monitor.History()),
	}
	if s.shells != nil {
		ps := s.shells.Stats()
		out["shell_pool"] = map[string]any{
			"enabled":     ps.Enabled,
			"pools":       ps.TotalPools,
			"idle_shells": ps.IdleShells,
			"in_use":      ps.InUse,
			"max_shells":  ps.MaxShells,
		}
	}
	return structpb.NewStruct(out)
}

// Serve listens on addr and serves until ctx is cancelled, then stops
// gracefully, forcing the stop after config.DefaultShutdownTimeout
func (s *Server) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on an existing listener until ctx is cancelled
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	g := grpc.NewServer()
	s.RegisterWithServer(g)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting gRPC operations server", "address", lis.Addr().String())
		errCh <- g.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		g.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-time.After(config.DefaultShutdownTimeout):
		s.logger.Warn("Graceful shutdown timeout, forcing stop")
		g.Stop()
		<-stopped
	}
	return nil
}
