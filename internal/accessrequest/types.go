package accessrequest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound reports that no request matches the given id.
	ErrNotFound = errors.New("request not found")
	// ErrNotPending reports a decision attempted on a settled request.
	ErrNotPending = errors.New("request is not pending")
	// ErrDeniedByPolicy reports a request rejected by the role policy.
	ErrDeniedByPolicy = errors.New("request denied by policy")
)

// Status is the lifecycle state of an access request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// ResourceRef identifies one resource an access request covers,
// e.g. {Kind: "node", Name: "A"}.
type ResourceRef struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// ParseResourceRef parses a "kind/name" string into a ResourceRef.
func ParseResourceRef(s string) (ResourceRef, error) {
	kind, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || strings.TrimSpace(kind) == "" || strings.TrimSpace(name) == "" {
		return ResourceRef{}, fmt.Errorf("invalid resource %q (expected kind/name)", s)
	}
	return ResourceRef{Kind: strings.TrimSpace(kind), Name: strings.TrimSpace(name)}, nil
}

func (r ResourceRef) String() string {
	return r.Kind + "/" + r.Name
}

// DurationOption is a selectable upper bound on how long an approved
// request stays valid. ValueMS is an absolute expiry timestamp in epoch
// milliseconds; 0 means no expiry.
type DurationOption struct {
	ValueMS int64  `json:"value"`
	Label   string `json:"label"`
}

// Request is a persisted access request record.
type Request struct {
	ID           string        `json:"id"`
	ClusterID    string        `json:"cluster_id"`
	Requester    string        `json:"requester"`
	Roles        []string      `json:"roles"`
	Resources    []ResourceRef `json:"resources"`
	Reason       string        `json:"reason,omitempty"`
	Suggested    bool          `json:"suggested,omitempty"`
	MaxDuration  *time.Time    `json:"max_duration,omitempty"`
	Status       Status        `json:"status"`
	RequestedAt  time.Time     `json:"requested_at"`
	DecidedAt    time.Time     `json:"decided_at,omitempty"`
	DecidedBy    string        `json:"decided_by,omitempty"`
	DecisionNote string        `json:"decision_note,omitempty"`
}

// CreateInput contains fields needed to create an access request.
type CreateInput struct {
	ClusterID   string        `json:"cluster_id"`
	Requester   string        `json:"requester"`
	Roles       []string      `json:"roles"`
	Resources   []ResourceRef `json:"resources"`
	Reason      string        `json:"reason"`
	Suggested   bool          `json:"suggested"`
	MaxDuration *time.Time    `json:"max_duration"`
}

// DecisionInput contains fields needed to approve or deny a request.
type DecisionInput struct {
	DecidedBy string
	Note      string
}

// Query filters access requests when listing.
type Query struct {
	ID        string
	Status    Status
	Requester string
}
