package domain

import (
	"fmt"
	"time"
)

// RuleAction is what happens to a batch's remainder when a rule matches.
type RuleAction string

const (
	ActionAutoApprove RuleAction = "auto_approve"
	ActionSendToQC    RuleAction = "send_to_qc"
	ActionRejectAll   RuleAction = "reject_all"
)

// ValidRuleAction reports whether s is a recognized remainder action.
func ValidRuleAction(s string) bool {
	switch RuleAction(s) {
	case ActionAutoApprove, ActionSendToQC, ActionRejectAll:
		return true
	}
	return false
}

// ApprovalRule maps an inclusive approval-rate band to a remainder action.
// Rule order is significant: the first rule containing the computed rate wins.
type ApprovalRule struct {
	MinRate     float64    `json:"min_rate"`
	MaxRate     float64    `json:"max_rate"`
	Action      RuleAction `json:"action"`
	Description string     `json:"description,omitempty"`
}

// Contains reports whether rate falls inside the rule's inclusive band.
func (r ApprovalRule) Contains(rate float64) bool {
	return rate >= r.MinRate && rate <= r.MaxRate
}

// QCConfig is the sampling and remainder-decision policy for a survey.
// A nil SurveyID marks the tenant-wide default.
type QCConfig struct {
	ID               string         `json:"id" db:"id"`
	TenantID         string         `json:"tenant_id" db:"tenant_id"`
	SurveyID         *string        `json:"survey_id" db:"survey_id"`
	SamplePercentage int            `json:"sample_percentage" db:"sample_percentage"`
	ApprovalRules    []ApprovalRule `json:"approval_rules" db:"approval_rules"`
	Notes            string         `json:"notes" db:"notes"`
	Active           bool           `json:"active" db:"active"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate checks the config invariants: percentage within [1,100], at least
// one rule unless the whole batch is sampled, well-formed inclusive bands,
// and no overlapping bands (overlap would make first-match-wins ambiguous).
func (c *QCConfig) Validate() error {
	if c.SamplePercentage < 1 || c.SamplePercentage > 100 {
		return fmt.Errorf("sample_percentage must be within [1,100], got %d", c.SamplePercentage)
	}
	if c.SamplePercentage < 100 && len(c.ApprovalRules) == 0 {
		return fmt.Errorf("approval_rules required when sample_percentage < 100")
	}
	for i, r := range c.ApprovalRules {
		if r.MinRate < 0 || r.MaxRate > 100 || r.MinRate > r.MaxRate {
			return fmt.Errorf("rule %d: band [%.2f,%.2f] outside 0 <= min <= max <= 100", i, r.MinRate, r.MaxRate)
		}
		if !ValidRuleAction(string(r.Action)) {
			return fmt.Errorf("rule %d: unknown action %q", i, r.Action)
		}
		for j := 0; j < i; j++ {
			p := c.ApprovalRules[j]
			if r.MinRate <= p.MaxRate && p.MinRate <= r.MaxRate {
				return fmt.Errorf("rule %d overlaps rule %d: [%.2f,%.2f] and [%.2f,%.2f]", i, j, r.MinRate, r.MaxRate, p.MinRate, p.MaxRate)
			}
		}
	}
	return nil
}

// Snapshot freezes the parts of the config a sealed batch keeps.
func (c *QCConfig) Snapshot() ConfigSnapshot {
	rules := make([]ApprovalRule, len(c.ApprovalRules))
	copy(rules, c.ApprovalRules)
	return ConfigSnapshot{
		SamplePercentage: c.SamplePercentage,
		ApprovalRules:    rules,
	}
}

// FallbackRules is the built-in remainder policy used when no config row is
// active for a survey or tenant: at or above 50% sample approval the
// remainder auto-approves, below 50% it is routed to QC. The bands meet at
// exactly 50; rule order resolves it in favor of auto-approval.
func FallbackRules() []ApprovalRule {
	return []ApprovalRule{
		{MinRate: 50, MaxRate: 100, Action: ActionAutoApprove, Description: "approval rate 50% or higher"},
		{MinRate: 0, MaxRate: 50, Action: ActionSendToQC, Description: "approval rate below 50%"},
	}
}
