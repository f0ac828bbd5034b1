package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kestrelops/jitgate/internal/client"
	"github.com/kestrelops/jitgate/internal/config"
	"github.com/kestrelops/jitgate/internal/metrics"
	"github.com/spf13/cobra"
)

const statusProbeTimeout = 3 * time.Second

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show jitgate configuration and service status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dataDir, err := cfg.Server.DataDirChecked()
	if err != nil {
		return fmt.Errorf("invalid data dir: %w", err)
	}

	fmt.Println("=== Jitgate Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (created on first run)")
	}

	fmt.Printf("\nData dir: %s\n", dataDir)
	if _, err := os.Stat(dataDir); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (created by 'jitgate serve')")
	}

	fmt.Printf("\nCluster: %s\n", cfg.Cluster.ID)
	fmt.Printf("  Server: %s\n", cfg.Cluster.ServerURL)
	fmt.Printf("  Requester: %s\n", cfg.Cluster.RequesterName())
	tokenStatus := "not configured"
	if strings.TrimSpace(cfg.Cluster.Token) != "" {
		tokenStatus = "configured"
	}
	fmt.Printf("  Token: %s\n", tokenStatus)

	fmt.Printf("\nPolicy: %s\n", cfg.Server.Policy.Mode)
	fmt.Printf("  Deny roles: %s\n", roleList(cfg.Server.Policy.DenyRoles))
	fmt.Printf("  Auto-approve roles: %s\n", roleList(cfg.Server.Policy.AutoApproveRoles))
	fmt.Printf("  Max request duration: %s\n", cfg.Server.MaxRequestDuration())

	fmt.Println("\nService:")
	ctx, cancel := context.WithTimeout(cmd.Context(), statusProbeTimeout)
	defer cancel()

	c := client.New(cfg.Cluster.ServerURL, cfg.Cluster.Token)
	if err := c.Health(ctx); err != nil {
		fmt.Println("  Status: unreachable")
		printLocalMetrics(dataDir)
		return nil
	}
	fmt.Println("  Status: OK")

	snap, err := c.FetchMetrics(ctx)
	if err != nil {
		fmt.Printf("  Metrics: unavailable (%v)\n", err)
		return nil
	}
	printMetrics(snap)
	return nil
}

// printLocalMetrics falls back to the persisted snapshot when the
// service is down.
func printLocalMetrics(dataDir string) {
	snap, err := metrics.ReadRuntimeSnapshot(dataDir)
	if err != nil || !snap.HasData() {
		return
	}
	fmt.Println("  Metrics (last persisted):")
	printMetrics(snap)
}

func printMetrics(snap metrics.RuntimeSnapshot) {
	if !snap.HasData() {
		fmt.Println("  Metrics: no data yet")
		return
	}
	fmt.Printf("  API requests: %d (errors %d, unauthorized %d)\n",
		snap.HTTP.Total, snap.HTTP.Errors, snap.HTTP.Unauthorized)
	fmt.Printf("  API latency: avg %.0fms, p95~%dms, max %dms\n",
		snap.HTTP.AvgLatencyMs(), snap.HTTP.P95ProxyLatencyMs, snap.HTTP.MaxLatencyMs)
	fmt.Printf("  Access requests: created %d, approved %d, denied %d, expired %d\n",
		snap.Lifecycle.Created, snap.Lifecycle.Approved, snap.Lifecycle.Denied, snap.Lifecycle.Expired)
}

func roleList(roles []string) string {
	if len(roles) == 0 {
		return "(none)"
	}
	return strings.Join(roles, ", ")
}
