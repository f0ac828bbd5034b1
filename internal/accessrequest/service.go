package accessrequest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kestrelops/jitgate/internal/policy"
)

// DefaultMaxDuration bounds how far out a request expiry may be placed
// when the service is not configured otherwise.
const DefaultMaxDuration = 7 * 24 * time.Hour

// durationLadder holds the candidate upper bounds offered to requesters,
// shortest first.
var durationLadder = []struct {
	d     time.Duration
	label string
}{
	{time.Hour, "1 hour"},
	{4 * time.Hour, "4 hours"},
	{8 * time.Hour, "8 hours"},
	{24 * time.Hour, "1 day"},
	{48 * time.Hour, "2 days"},
	{7 * 24 * time.Hour, "1 week"},
}

// Service orchestrates access request lifecycle operations.
type Service struct {
	store       *Store
	maxDuration time.Duration
	policy      *policy.Evaluator
	now         func() time.Time
	mu          sync.Mutex
}

// NewService creates a service backed by <dataDir>/requests.json.
// A non-positive maxDuration falls back to DefaultMaxDuration.
func NewService(dataDir string, maxDuration time.Duration) *Service {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Service{
		store:       NewStore(dataDir),
		maxDuration: maxDuration,
		now:         time.Now,
	}
}

// SetPolicy installs a role policy evaluated on Create. A nil evaluator
// routes every request to human approval.
func (s *Service) SetPolicy(eval *policy.Evaluator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = eval
}

// DurationOptions computes the selectable expiry options for a request
// against the given cluster. The first option is always the "no expiry"
// sentinel (value 0); the rest are absolute expiry timestamps in epoch
// milliseconds, capped by the service's maximum request duration.
func (s *Service) DurationOptions(clusterID string, roles []string, resources []ResourceRef) ([]DurationOption, error) {
	if strings.TrimSpace(clusterID) == "" {
		return nil, fmt.Errorf("cluster_id is required")
	}

	now := s.now().UTC()
	options := []DurationOption{{ValueMS: 0, Label: "No expiry"}}
	for _, rung := range durationLadder {
		if rung.d > s.maxDuration {
			break
		}
		options = append(options, DurationOption{
			ValueMS: now.Add(rung.d).UnixMilli(),
			Label:   rung.label,
		})
	}
	return options, nil
}

// Create inserts a new pending access request.
func (s *Service) Create(input CreateInput) (Request, error) {
	clusterID := strings.TrimSpace(input.ClusterID)
	if clusterID == "" {
		return Request{}, fmt.Errorf("cluster_id is required")
	}
	if len(input.Roles) == 0 && len(input.Resources) == 0 {
		return Request{}, fmt.Errorf("at least one role or resource is required")
	}

	now := s.now().UTC()
	if input.MaxDuration != nil {
		expiry := input.MaxDuration.UTC()
		if expiry.Before(now) {
			return Request{}, fmt.Errorf("max_duration %s is in the past", expiry.Format(time.RFC3339))
		}
		if expiry.After(now.Add(s.maxDuration)) {
			return Request{}, fmt.Errorf("max_duration exceeds the cluster limit of %s", s.maxDuration)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := StatusPending
	decidedBy := ""
	decisionNote := ""
	var decidedAt time.Time
	if s.policy != nil {
		decision := s.policy.Evaluate(input.Roles)
		switch decision.Action {
		case policy.ActionDeny:
			return Request{}, fmt.Errorf("%w: %s", ErrDeniedByPolicy, decision.Reason)
		case policy.ActionAutoApprove:
			status = StatusApproved
			decidedBy = "policy"
			decisionNote = decision.Reason
			decidedAt = now
		}
	}

	data, err := s.store.Load()
	if err != nil {
		return Request{}, err
	}

	request := Request{
		ID:           strconv.FormatInt(data.NextID, 10),
		ClusterID:    clusterID,
		Requester:    strings.TrimSpace(input.Requester),
		Roles:        input.Roles,
		Resources:    input.Resources,
		Reason:       strings.TrimSpace(input.Reason),
		Suggested:    input.Suggested,
		MaxDuration:  normalizeExpiry(input.MaxDuration),
		Status:       status,
		RequestedAt:  now,
		DecidedAt:    decidedAt,
		DecidedBy:    decidedBy,
		DecisionNote: decisionNote,
	}

	data.NextID++
	data.Requests = append(data.Requests, request)

	if err := s.store.Save(data); err != nil {
		return Request{}, err
	}
	return request, nil
}

// Get returns a single request by id.
func (s *Service) Get(id string) (Request, error) {
	requests, err := s.List(Query{ID: id})
	if err != nil {
		return Request{}, err
	}
	if len(requests) == 0 {
		return Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return requests[0], nil
}

// List returns requests filtered by query values.
func (s *Service) List(query Query) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	idFilter := strings.TrimSpace(query.ID)
	statusFilter := strings.TrimSpace(string(query.Status))
	requesterFilter := strings.TrimSpace(query.Requester)

	result := make([]Request, 0, len(data.Requests))
	for _, req := range data.Requests {
		if idFilter != "" && req.ID != idFilter {
			continue
		}
		if statusFilter != "" && string(req.Status) != statusFilter {
			continue
		}
		if requesterFilter != "" && !strings.EqualFold(req.Requester, requesterFilter) {
			continue
		}
		result = append(result, req)
	}
	return result, nil
}

// Approve marks a pending request as approved.
func (s *Service) Approve(id string, decision DecisionInput) (Request, error) {
	return s.decide(id, StatusApproved, decision, "approved")
}

// Deny marks a pending request as denied.
func (s *Service) Deny(id string, decision DecisionInput) (Request, error) {
	return s.decide(id, StatusDenied, decision, "denied")
}

// ExpirePending marks pending requests as expired when their max
// duration has elapsed. Requests without an expiry never expire.
func (s *Service) ExpirePending() ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expired := make([]Request, 0)
	changed := false

	for i := range data.Requests {
		req := &data.Requests[i]
		if req.Status != StatusPending {
			continue
		}
		if req.MaxDuration == nil || req.MaxDuration.After(now) {
			continue
		}

		req.Status = StatusExpired
		req.DecidedAt = now
		req.DecidedBy = "system"
		if strings.TrimSpace(req.DecisionNote) == "" {
			req.DecisionNote = "expired by max duration"
		}
		expired = append(expired, *req)
		changed = true
	}

	if changed {
		if err := s.store.Save(data); err != nil {
			return nil, err
		}
	}

	return expired, nil
}

func (s *Service) decide(id string, status Status, decision DecisionInput, defaultNote string) (Request, error) {
	requestID := strings.TrimSpace(id)
	if requestID == "" {
		return Request{}, fmt.Errorf("id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Request{}, err
	}

	now := s.now().UTC()
	decidedBy := strings.TrimSpace(decision.DecidedBy)
	if decidedBy == "" {
		decidedBy = "unknown"
	}
	decisionNote := strings.TrimSpace(decision.Note)
	if decisionNote == "" {
		decisionNote = defaultNote
	}

	for i := range data.Requests {
		req := &data.Requests[i]
		if req.ID != requestID {
			continue
		}
		if req.Status != StatusPending {
			return Request{}, fmt.Errorf("%w: %s", ErrNotPending, requestID)
		}

		req.Status = status
		req.DecidedAt = now
		req.DecidedBy = decidedBy
		req.DecisionNote = decisionNote

		if err := s.store.Save(data); err != nil {
			return Request{}, err
		}
		return *req, nil
	}

	return Request{}, fmt.Errorf("%w: %s", ErrNotFound, requestID)
}

func normalizeExpiry(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
