package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/retry"
)

// MaxGuardrails bounds the rule list per agent
const MaxGuardrails = 50

type Service struct {
	repo     Repository
	executor *retry.Executor
	policy   retry.Policy
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, executor *retry.Executor, policy retry.Policy, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		executor: executor,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// GetPolicy returns an agent's stored policy, or its default if none is stored
func (s *Service) GetPolicy(ctx context.Context, agent Agent) (*AgentPolicy, error) {
	if !slices.Contains(KnownAgents, agent) {
		return nil, fmt.Errorf("unknown agent %q: %w", agent, ErrNotFound)
	}
	policy, err := retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*AgentPolicy, error) {
		return s.repo.GetPolicy(ctx, agent)
	})
	if errors.Is(err, ErrNotFound) {
		return DefaultPolicy(agent), nil
	}
	return policy, err
}

// ListPolicies returns one policy per known agent
func (s *Service) ListPolicies(ctx context.Context) ([]*AgentPolicy, error) {
	stored, err := retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]*AgentPolicy, error) {
		return s.repo.ListPolicies(ctx)
	})
	if err != nil {
		return nil, err
	}

	byAgent := make(map[Agent]*AgentPolicy, len(stored))
	for _, p := range stored {
		byAgent[p.Agent] = p
	}
	out := make([]*AgentPolicy, 0, len(KnownAgents))
	for _, agent := range KnownAgents {
		if p, ok := byAgent[agent]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, DefaultPolicy(agent))
	}
	return out, nil
}

// UpdatePolicy applies req on top of the agent's current policy
func (s *Service) UpdatePolicy(ctx context.Context, agent Agent, userID uuid.UUID, req *UpdatePolicyRequest) (*AgentPolicy, error) {
	policy, err := s.GetPolicy(ctx, agent)
	if err != nil {
		return nil, err
	}

	if req.Enabled != nil {
		policy.Enabled = *req.Enabled
	}
	if req.ConfidenceThreshold != nil {
		if t := *req.ConfidenceThreshold; t < 0 || t > 1 {
			return nil, fmt.Errorf("%w: confidence_threshold must be between 0 and 1", ErrValidation)
		}
		policy.ConfidenceThreshold = *req.ConfidenceThreshold
	}
	if req.AutoRespond != nil {
		policy.AutoRespond = *req.AutoRespond
	}
	if req.Guardrails != nil {
		if err := validGuardrails(req.Guardrails); err != nil {
			return nil, err
		}
		policy.Guardrails = req.Guardrails
	}
	if req.EscalationContact != nil {
		contact := strings.TrimSpace(*req.EscalationContact)
		if contact != "" {
			if _, err := mail.ParseAddress(contact); err != nil {
				return nil, fmt.Errorf("%w: escalation_contact must be an email address", ErrValidation)
			}
		}
		policy.EscalationContact = contact
	}
	if policy.AutoRespond && !policy.Enabled {
		return nil, fmt.Errorf("%w: auto_respond requires the agent to be enabled", ErrValidation)
	}
	if policy.AutoRespond && policy.EscalationContact == "" {
		return nil, fmt.Errorf("%w: auto_respond requires an escalation_contact", ErrValidation)
	}

	now := s.now()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now
	if userID != uuid.Nil {
		policy.UpdatedBy = &userID
	}

	if err := s.executor.Run(ctx, s.policy, func(ctx context.Context) error {
		return s.repo.SavePolicy(ctx, policy)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Agent policy updated",
		zap.String("agent", string(agent)),
		zap.Bool("enabled", policy.Enabled),
		zap.Float64("confidence_threshold", policy.ConfidenceThreshold))
	return policy, nil
}

// ResetPolicy drops an agent's stored policy so it runs with its default again
func (s *Service) ResetPolicy(ctx context.Context, agent Agent) (*AgentPolicy, error) {
	if !slices.Contains(KnownAgents, agent) {
		return nil, fmt.Errorf("unknown agent %q: %w", agent, ErrNotFound)
	}
	if err := s.executor.Run(ctx, s.policy, func(ctx context.Context) error {
		return s.repo.DeletePolicy(ctx, agent)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("Agent policy reset", zap.String("agent", string(agent)))
	return DefaultPolicy(agent), nil
}

func validGuardrails(raw []byte) error {
	var rules []string
	if err := json.Unmarshal(raw, &rules); err != nil {
		return fmt.Errorf("%w: guardrails must be a JSON array of strings", ErrValidation)
	}
	if len(rules) > MaxGuardrails {
		return fmt.Errorf("%w: at most %d guardrails", ErrValidation, MaxGuardrails)
	}
	for _, r := range rules {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: guardrails cannot be blank", ErrValidation)
		}
	}
	return nil
}
