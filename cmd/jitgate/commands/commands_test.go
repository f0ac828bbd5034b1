package commands

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kestrelops/jitgate/internal/accessrequest"
	"github.com/kestrelops/jitgate/internal/config"
	"github.com/kestrelops/jitgate/internal/server"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()

	return buf.String()
}

// prepareRequestService starts an in-process request service and writes
// a config pointing the CLI at it.
func prepareRequestService(t *testing.T) *accessrequest.Service {
	t.Helper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	svc := accessrequest.NewService(t.TempDir(), 24*time.Hour)
	ts := httptest.NewServer(server.NewHandler("", svc, nil, nil))
	t.Cleanup(ts.Close)

	cfg := config.DefaultConfig()
	cfg.Cluster.ID = "east"
	cfg.Cluster.ServerURL = ts.URL
	cfg.Cluster.Requester = "alice"
	if err := config.Save(cfg); err != nil {
		t.Fatalf("config.Save: %v", err)
	}
	return svc
}
