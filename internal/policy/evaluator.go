package policy

import (
	"fmt"
	"strings"
)

// Evaluator decides whether a role request is denied, auto-approved,
// or routed to a human approver.
type Evaluator struct {
	mode        Mode
	denied      map[string]bool
	autoApprove map[string]bool
}

// NewEvaluator builds an evaluator from the policy config. Role names
// are matched case-insensitively.
func NewEvaluator(cfg Config) *Evaluator {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeRelaxed
	}
	return &Evaluator{
		mode:        mode,
		denied:      normalizeSet(cfg.DenyRoles),
		autoApprove: normalizeSet(cfg.AutoApproveRoles),
	}
}

// Evaluate returns the policy decision for the requested roles.
// A single denied role denies the whole request. Auto-approval
// requires every requested role to be on the auto-approve list.
func (e *Evaluator) Evaluate(roles []string) Decision {
	if e.mode == ModeOff {
		return Decision{Action: ActionRequireApproval, Reason: "policy disabled"}
	}

	for _, role := range roles {
		if e.denied[normalizeRole(role)] {
			return Decision{
				Action: ActionDeny,
				Reason: fmt.Sprintf("role %q is denied by policy", role),
			}
		}
	}

	allCovered := len(roles) > 0
	for _, role := range roles {
		if !e.autoApprove[normalizeRole(role)] {
			allCovered = false
			if e.mode == ModeStrict {
				return Decision{
					Action: ActionDeny,
					Reason: fmt.Sprintf("role %q is not listed in strict policy", role),
				}
			}
		}
	}
	if allCovered {
		return Decision{Action: ActionAutoApprove, Reason: "all roles auto-approved by policy"}
	}
	return Decision{Action: ActionRequireApproval, Reason: "roles require human approval"}
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func normalizeSet(roles []string) map[string]bool {
	set := make(map[string]bool, len(roles))
	for _, role := range roles {
		normalized := normalizeRole(role)
		if normalized == "" {
			continue
		}
		set[normalized] = true
	}
	return set
}
