package accessrequest

import (
	"errors"
	"testing"
	"time"

	"github.com/kestrelops/jitgate/internal/policy"
)

func TestParseResourceRef(t *testing.T) {
	ref, err := ParseResourceRef("node/A")
	if err != nil {
		t.Fatalf("ParseResourceRef error: %v", err)
	}
	if ref.Kind != "node" || ref.Name != "A" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if ref.String() != "node/A" {
		t.Fatalf("unexpected String: %q", ref.String())
	}

	for _, bad := range []string{"", "node", "/A", "node/"} {
		if _, err := ParseResourceRef(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestService_DurationOptions(t *testing.T) {
	svc := NewService(t.TempDir(), 24*time.Hour)
	fixedNow := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixedNow }

	options, err := svc.DurationOptions("east", []string{"admin"}, nil)
	if err != nil {
		t.Fatalf("DurationOptions error: %v", err)
	}

	if len(options) != 5 {
		t.Fatalf("expected 5 options (sentinel + 1h/4h/8h/1d), got %d: %+v", len(options), options)
	}
	if options[0].ValueMS != 0 {
		t.Fatalf("expected sentinel first, got %+v", options[0])
	}
	if options[0].Label != "No expiry" {
		t.Fatalf("unexpected sentinel label: %q", options[0].Label)
	}
	wantLast := fixedNow.Add(24 * time.Hour).UnixMilli()
	if options[len(options)-1].ValueMS != wantLast {
		t.Fatalf("expected last option at %d, got %d", wantLast, options[len(options)-1].ValueMS)
	}
	if options[len(options)-1].Label != "1 day" {
		t.Fatalf("unexpected last label: %q", options[len(options)-1].Label)
	}

	if _, err := svc.DurationOptions("", nil, nil); err == nil {
		t.Fatal("expected error for empty cluster_id")
	}
}

func TestService_CreateAndApproveFlow(t *testing.T) {
	dataDir := t.TempDir()
	svc := NewService(dataDir, 0)
	fixedNow := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixedNow }

	expiry := fixedNow.Add(24 * time.Hour)
	created, err := svc.Create(CreateInput{
		ClusterID:   "east",
		Requester:   "alice",
		Roles:       []string{"admin"},
		Resources:   []ResourceRef{{Kind: "node", Name: "A"}},
		Reason:      "investigate incident",
		MaxDuration: &expiry,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if created.Status != StatusPending {
		t.Fatalf("expected status %q, got %q", StatusPending, created.Status)
	}
	if created.RequestedAt != fixedNow {
		t.Fatalf("unexpected requested_at: %s", created.RequestedAt)
	}
	if created.MaxDuration == nil || !created.MaxDuration.Equal(expiry) {
		t.Fatalf("unexpected max_duration: %v", created.MaxDuration)
	}

	svc.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	approved, err := svc.Approve(created.ID, DecisionInput{
		DecidedBy: "owner",
		Note:      "on-call incident",
	})
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("expected status %q, got %q", StatusApproved, approved.Status)
	}
	if approved.DecidedBy != "owner" {
		t.Fatalf("unexpected decided_by: %q", approved.DecidedBy)
	}
	if approved.DecisionNote != "on-call incident" {
		t.Fatalf("unexpected decision_note: %q", approved.DecisionNote)
	}

	svcReloaded := NewService(dataDir, 0)
	persisted, err := svcReloaded.List(Query{Status: StatusApproved})
	if err != nil {
		t.Fatalf("List after reload error: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected 1 approved request after reload, got %d", len(persisted))
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(t.TempDir(), 24*time.Hour)
	fixedNow := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixedNow }

	if _, err := svc.Create(CreateInput{Roles: []string{"admin"}}); err == nil {
		t.Fatal("expected error for missing cluster_id")
	}
	if _, err := svc.Create(CreateInput{ClusterID: "east"}); err == nil {
		t.Fatal("expected error for empty roles and resources")
	}

	past := fixedNow.Add(-time.Hour)
	if _, err := svc.Create(CreateInput{
		ClusterID:   "east",
		Roles:       []string{"admin"},
		MaxDuration: &past,
	}); err == nil {
		t.Fatal("expected error for expiry in the past")
	}

	tooFar := fixedNow.Add(48 * time.Hour)
	if _, err := svc.Create(CreateInput{
		ClusterID:   "east",
		Roles:       []string{"admin"},
		MaxDuration: &tooFar,
	}); err == nil {
		t.Fatal("expected error for expiry beyond cluster limit")
	}
}

func TestService_DenyFlow(t *testing.T) {
	svc := NewService(t.TempDir(), 0)
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixedNow }

	created, err := svc.Create(CreateInput{
		ClusterID: "east",
		Requester: "bob",
		Roles:     []string{"editor"},
		Reason:    "routine maintenance",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	denied, err := svc.Deny(created.ID, DecisionInput{DecidedBy: "owner", Note: "not needed"})
	if err != nil {
		t.Fatalf("Deny error: %v", err)
	}
	if denied.Status != StatusDenied {
		t.Fatalf("expected status %q, got %q", StatusDenied, denied.Status)
	}

	if _, err := svc.Approve(created.ID, DecisionInput{DecidedBy: "owner"}); err == nil {
		t.Fatal("expected error approving a non-pending request")
	}
}

func TestService_CreateWithPolicy(t *testing.T) {
	svc := NewService(t.TempDir(), 0)
	fixedNow := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixedNow }
	svc.SetPolicy(policy.NewEvaluator(policy.Config{
		Mode:             policy.ModeRelaxed,
		DenyRoles:        []string{"root"},
		AutoApproveRoles: []string{"viewer"},
	}))

	_, err := svc.Create(CreateInput{
		ClusterID: "east",
		Requester: "alice",
		Roles:     []string{"root"},
	})
	if !errors.Is(err, ErrDeniedByPolicy) {
		t.Fatalf("expected ErrDeniedByPolicy, got %v", err)
	}

	approved, err := svc.Create(CreateInput{
		ClusterID: "east",
		Requester: "alice",
		Roles:     []string{"viewer"},
	})
	if err != nil {
		t.Fatalf("Create auto-approved request: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("expected auto-approved status, got %q", approved.Status)
	}
	if approved.DecidedBy != "policy" {
		t.Fatalf("expected decided_by policy, got %q", approved.DecidedBy)
	}
	if approved.DecidedAt != fixedNow {
		t.Fatalf("unexpected decided_at: %s", approved.DecidedAt)
	}

	pending, err := svc.Create(CreateInput{
		ClusterID: "east",
		Requester: "alice",
		Roles:     []string{"viewer", "editor"},
	})
	if err != nil {
		t.Fatalf("Create pending request: %v", err)
	}
	if pending.Status != StatusPending {
		t.Fatalf("expected uncovered roles to stay pending, got %q", pending.Status)
	}
}

func TestService_ExpirePendingByMaxDuration(t *testing.T) {
	svc := NewService(t.TempDir(), 0)
	baseNow := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return baseNow }

	soon := baseNow.Add(time.Hour)
	expiring, err := svc.Create(CreateInput{
		ClusterID:   "east",
		Roles:       []string{"admin"},
		MaxDuration: &soon,
	})
	if err != nil {
		t.Fatalf("Create expiring request: %v", err)
	}

	unbounded, err := svc.Create(CreateInput{
		ClusterID: "east",
		Roles:     []string{"viewer"},
	})
	if err != nil {
		t.Fatalf("Create unbounded request: %v", err)
	}

	svc.now = func() time.Time { return baseNow.Add(2 * time.Hour) }
	expired, err := svc.ExpirePending()
	if err != nil {
		t.Fatalf("ExpirePending error: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != expiring.ID {
		t.Fatalf("expected only %s to expire, got %+v", expiring.ID, expired)
	}

	still, err := svc.Get(unbounded.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if still.Status != StatusPending {
		t.Fatalf("expected unbounded request to stay pending, got %q", still.Status)
	}
}
