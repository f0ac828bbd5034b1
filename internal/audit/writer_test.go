package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWriter_AppendEvent(t *testing.T) {
	dataDir := t.TempDir()
	writer := NewWriter(dataDir)

	firstTime := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	secondTime := firstTime.Add(5 * time.Second)

	if err := writer.Append(Event{
		Time:      firstTime,
		Type:      "request.created",
		RequestID: "1",
		Actor:     "alice",
		Status:    "pending",
	}); err != nil {
		t.Fatalf("Append first event error: %v", err)
	}

	if err := writer.Append(Event{
		Time:      secondTime,
		Type:      "request.approved",
		RequestID: "1",
		Actor:     "owner",
		Status:    "approved",
		Note:      "on-call",
	}); err != nil {
		t.Fatalf("Append second event error: %v", err)
	}

	auditPath := filepath.Join(dataDir, "audit.jsonl")
	file, err := os.Open(auditPath)
	if err != nil {
		t.Fatalf("Open audit file error: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lines := make([]string, 0, 2)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit file error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 jsonl lines, got %d", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line error: %v", err)
	}
	if !first.Time.Equal(firstTime) {
		t.Fatalf("expected first time %s, got %s", firstTime, first.Time)
	}
	if first.Type != "request.created" {
		t.Fatalf("expected first type request.created, got %q", first.Type)
	}
	if first.Actor != "alice" {
		t.Fatalf("expected first actor alice, got %q", first.Actor)
	}

	var second Event
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second line error: %v", err)
	}
	if second.Type != "request.approved" {
		t.Fatalf("expected second type request.approved, got %q", second.Type)
	}
	if second.Note != "on-call" {
		t.Fatalf("expected second note on-call, got %q", second.Note)
	}
}

func TestWriter_AppendEvent_MkdirAllFailure(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "data")
	if err := os.WriteFile(blocker, []byte("not-a-dir"), 0644); err != nil {
		t.Fatalf("WriteFile blocker error: %v", err)
	}

	writer := NewWriter(filepath.Join(blocker, "nested"))
	err := writer.Append(Event{Time: time.Now().UTC(), Type: "request.created"})
	if err == nil {
		t.Fatal("expected append error when data path is a file")
	}
}

func TestWriter_AppendEvent_Concurrent(t *testing.T) {
	dataDir := t.TempDir()
	writer := NewWriter(dataDir)

	const total = 20
	var wg sync.WaitGroup
	errCh := make(chan error, total)
	wg.Add(total)
	for i := 0; i < total; i++ {
		i := i
		go func() {
			defer wg.Done()
			if err := writer.Append(Event{
				Time:      time.Date(2026, 3, 1, 9, 0, i, 0, time.UTC),
				Type:      "request.created",
				RequestID: fmt.Sprintf("%d", i),
				Actor:     "alice",
			}); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("append failed in concurrent path: %v", err)
	}

	auditPath := filepath.Join(dataDir, "audit.jsonl")
	file, err := os.Open(auditPath)
	if err != nil {
		t.Fatalf("Open audit file error: %v", err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit file error: %v", err)
	}
	if count != total {
		t.Fatalf("expected %d lines, got %d", total, count)
	}
}
