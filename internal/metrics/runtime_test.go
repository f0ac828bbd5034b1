package metrics

import (
	"testing"
	"time"
)

func TestRuntimeMetrics_AggregatesHTTPStats(t *testing.T) {
	dataDir := t.TempDir()
	recorder := NewRuntimeMetrics(dataDir)

	snap, err := recorder.RecordHTTPRequest(120*time.Millisecond, 200)
	if err != nil {
		t.Fatalf("RecordHTTPRequest success error: %v", err)
	}
	if snap.HTTP.Total != 1 || snap.HTTP.Errors != 0 || snap.HTTP.Unauthorized != 0 {
		t.Fatalf("unexpected first snapshot: %+v", snap.HTTP)
	}

	_, _ = recorder.RecordHTTPRequest(250*time.Millisecond, 500)
	_, _ = recorder.RecordHTTPRequest(30*time.Millisecond, 401)
	snap, _ = recorder.RecordHTTPRequest(1500*time.Millisecond, 201)

	if snap.HTTP.Total != 4 {
		t.Fatalf("expected 4 requests, got %d", snap.HTTP.Total)
	}
	if snap.HTTP.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", snap.HTTP.Errors)
	}
	if snap.HTTP.Unauthorized != 1 {
		t.Fatalf("expected 1 unauthorized, got %d", snap.HTTP.Unauthorized)
	}
	if snap.HTTP.MaxLatencyMs != 1500 {
		t.Fatalf("expected max latency 1500ms, got %d", snap.HTTP.MaxLatencyMs)
	}
	if snap.HTTP.LastLatencyMs != 1500 {
		t.Fatalf("expected last latency 1500ms, got %d", snap.HTTP.LastLatencyMs)
	}
	if got := snap.HTTP.ErrorRatio(); got < 0.24 || got > 0.26 {
		t.Fatalf("expected error ratio about 0.25, got %.4f", got)
	}
	if snap.HTTP.P95ProxyLatencyMs <= 0 {
		t.Fatalf("expected positive p95 proxy, got %d", snap.HTTP.P95ProxyLatencyMs)
	}
	if !snap.HasData() {
		t.Fatal("expected HasData after recording")
	}
}

func TestRuntimeMetrics_CountsLifecycleEvents(t *testing.T) {
	recorder := NewRuntimeMetrics(t.TempDir())

	for _, eventType := range []string{
		"request.created",
		"request.created",
		"request.approved",
		"request.denied",
		"request.expired",
		"request.unknown",
	} {
		if _, err := recorder.RecordLifecycleEvent(eventType); err != nil {
			t.Fatalf("RecordLifecycleEvent(%s) error: %v", eventType, err)
		}
	}

	snap := recorder.Snapshot()
	if snap.Lifecycle.Created != 2 {
		t.Fatalf("expected 2 created, got %d", snap.Lifecycle.Created)
	}
	if snap.Lifecycle.Approved != 1 || snap.Lifecycle.Denied != 1 || snap.Lifecycle.Expired != 1 {
		t.Fatalf("unexpected lifecycle counters: %+v", snap.Lifecycle)
	}
	if got := snap.Lifecycle.ApprovalRatio(); got != 0.5 {
		t.Fatalf("expected approval ratio 0.5, got %.4f", got)
	}
}

func TestRuntimeMetrics_PersistsAndReloadsSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	recorder := NewRuntimeMetrics(dataDir)

	if _, err := recorder.RecordHTTPRequest(75*time.Millisecond, 200); err != nil {
		t.Fatalf("RecordHTTPRequest error: %v", err)
	}
	if _, err := recorder.RecordLifecycleEvent("request.created"); err != nil {
		t.Fatalf("RecordLifecycleEvent error: %v", err)
	}

	loaded, err := ReadRuntimeSnapshot(dataDir)
	if err != nil {
		t.Fatalf("ReadRuntimeSnapshot error: %v", err)
	}
	if loaded.HTTP.Total != 1 {
		t.Fatalf("expected persisted total 1, got %d", loaded.HTTP.Total)
	}
	if loaded.Lifecycle.Created != 1 {
		t.Fatalf("expected persisted created 1, got %d", loaded.Lifecycle.Created)
	}
}

func TestReadRuntimeSnapshot_MissingFileReturnsZero(t *testing.T) {
	snap, err := ReadRuntimeSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("ReadRuntimeSnapshot error: %v", err)
	}
	if snap.HasData() {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}

func TestRuntimeMetrics_NilRecorderIsNoop(t *testing.T) {
	var recorder *RuntimeMetrics
	if _, err := recorder.RecordHTTPRequest(time.Second, 200); err != nil {
		t.Fatalf("nil recorder RecordHTTPRequest error: %v", err)
	}
	snap := recorder.Snapshot()
	if snap.HasData() {
		t.Fatalf("expected empty snapshot from nil recorder, got %+v", snap)
	}
}
