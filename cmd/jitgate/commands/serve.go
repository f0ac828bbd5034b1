package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelops/jitgate/internal/accessrequest"
	"github.com/kestrelops/jitgate/internal/audit"
	"github.com/kestrelops/jitgate/internal/config"
	"github.com/kestrelops/jitgate/internal/metrics"
	"github.com/kestrelops/jitgate/internal/policy"
	"github.com/kestrelops/jitgate/internal/server"
	"github.com/spf13/cobra"
)

const expireSweepInterval = time.Minute

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the access request service",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dataDir, err := cfg.Server.DataDirChecked()
	if err != nil {
		return fmt.Errorf("invalid data dir: %w", err)
	}

	svc := accessrequest.NewService(dataDir, cfg.Server.MaxRequestDuration())
	svc.SetPolicy(policy.NewEvaluator(policy.Config{
		Mode:             policy.Mode(cfg.Server.Policy.Mode),
		DenyRoles:        cfg.Server.Policy.DenyRoles,
		AutoApproveRoles: cfg.Server.Policy.AutoApproveRoles,
	}))

	auditor := audit.NewWriter(dataDir)
	recorder := metrics.NewRuntimeMetrics(dataDir)
	srv := server.New(cfg.Server, svc, auditor, recorder)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("request service failed: %w", err)
		}
	}()

	go sweepExpired(ctx, svc, auditor, recorder)

	fmt.Printf("Jitgate request service running at http://%s\nPress Ctrl+C to stop.\n", srv.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return runErr
}

// sweepExpired periodically expires pending requests whose max duration
// has elapsed.
func sweepExpired(ctx context.Context, svc *accessrequest.Service, auditor *audit.Writer, recorder *metrics.RuntimeMetrics) {
	ticker := time.NewTicker(expireSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := svc.ExpirePending()
			if err != nil {
				slog.Warn("expire sweep failed", "error", err)
				continue
			}
			for _, req := range expired {
				slog.Info("access request expired", "id", req.ID, "requester", req.Requester)
				if err := auditor.Append(audit.Event{
					Time:      req.DecidedAt,
					Type:      "request.expired",
					RequestID: req.ID,
					Actor:     req.DecidedBy,
					Status:    string(req.Status),
					Note:      req.DecisionNote,
				}); err != nil {
					slog.Warn("failed to append audit event", "type", "request.expired", "error", err)
				}
				if _, err := recorder.RecordLifecycleEvent("request.expired"); err != nil {
					slog.Warn("failed to record lifecycle metric", "type", "request.expired", "error", err)
				}
			}
		}
	}
}
