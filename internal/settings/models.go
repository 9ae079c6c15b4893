package settings

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	// ErrNotFound is returned when no policy exists for an agent
	ErrNotFound = errors.New("not found")
	// ErrValidation marks policies the service rejects
	ErrValidation = errors.New("validation failed")
)

// Agent names the AI assistants whose behaviour staff can tune
type Agent string

const (
	AgentInquiryResponder Agent = "inquiry_responder"
	AgentLeadScorer       Agent = "lead_scorer"
	AgentApplicationCoach Agent = "application_coach"
)

// KnownAgents lists every configurable agent
var KnownAgents = []Agent{AgentInquiryResponder, AgentLeadScorer, AgentApplicationCoach}

// AgentPolicy controls when an agent may act on its own. It is stored and
// served as data; the agents themselves run elsewhere.
type AgentPolicy struct {
	Agent               Agent          `json:"agent"`
	Enabled             bool           `json:"enabled"`
	ConfidenceThreshold float64        `json:"confidence_threshold"` // 0..1
	AutoRespond         bool           `json:"auto_respond"`
	Guardrails          datatypes.JSON `json:"guardrails"` // JSON array of rule strings
	EscalationContact   string         `json:"escalation_contact,omitempty"`
	UpdatedBy           *uuid.UUID     `json:"updated_by,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// UpdatePolicyRequest changes an agent's policy
type UpdatePolicyRequest struct {
	Enabled             *bool          `json:"enabled,omitempty"`
	ConfidenceThreshold *float64       `json:"confidence_threshold,omitempty"`
	AutoRespond         *bool          `json:"auto_respond,omitempty"`
	Guardrails          datatypes.JSON `json:"guardrails,omitempty"`
	EscalationContact   *string        `json:"escalation_contact,omitempty"`
}

// DefaultPolicy is what an agent runs with before staff configure it
func DefaultPolicy(agent Agent) *AgentPolicy {
	return &AgentPolicy{
		Agent:               agent,
		Enabled:             false,
		ConfidenceThreshold: 0.8,
		AutoRespond:         false,
		Guardrails:          datatypes.JSON(`[]`),
	}
}
