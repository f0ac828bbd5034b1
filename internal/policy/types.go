package policy

// Action is the policy outcome for a requested role set.
type Action string

const (
	ActionAutoApprove     Action = "auto_approve"
	ActionDeny            Action = "deny"
	ActionRequireApproval Action = "require_approval"
)

// Mode controls how unknown roles are treated.
type Mode string

const (
	// ModeStrict denies any role not explicitly listed.
	ModeStrict Mode = "strict"
	// ModeRelaxed routes unknown roles to human approval.
	ModeRelaxed Mode = "relaxed"
	// ModeOff routes everything to human approval.
	ModeOff Mode = "off"
)

// Config describes the role policy for a server.
type Config struct {
	Mode             Mode     `json:"mode"`
	DenyRoles        []string `json:"denyRoles"`
	AutoApproveRoles []string `json:"autoApproveRoles"`
}

// Decision is the result of evaluating a request against the policy.
type Decision struct {
	Action Action
	Reason string
}
