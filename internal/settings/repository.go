package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"admissions-portal/portal-backend/internal/datasource"
)

const policyTable = "agent_policies"

// Repository persists agent policies
type Repository interface {
	GetPolicy(ctx context.Context, agent Agent) (*AgentPolicy, error)
	ListPolicies(ctx context.Context) ([]*AgentPolicy, error)
	SavePolicy(ctx context.Context, policy *AgentPolicy) error
	DeletePolicy(ctx context.Context, agent Agent) error
}

type sourceRepository struct {
	source datasource.Source
}

// NewRepository stores policies in the configured data source, so writes go
// through the hosted backend (and its session) unless reports read Postgres
// directly
func NewRepository(source datasource.Source) Repository {
	return &sourceRepository{source: source}
}

func byAgent(agent Agent) datasource.Predicate {
	return datasource.Comparison{Field: "agent", Op: datasource.OpEquals, Value: string(agent)}
}

func (r *sourceRepository) GetPolicy(ctx context.Context, agent Agent) (*AgentPolicy, error) {
	rows, err := r.source.Select(ctx, datasource.Query{Table: policyTable, Where: byAgent(agent), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return decodePolicy(rows[0])
}

func (r *sourceRepository) ListPolicies(ctx context.Context) ([]*AgentPolicy, error) {
	rows, err := r.source.Select(ctx, datasource.Query{
		Table:   policyTable,
		OrderBy: []datasource.Order{{Field: "agent"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	policies := make([]*AgentPolicy, 0, len(rows))
	for _, row := range rows {
		p, err := decodePolicy(row)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// SavePolicy updates the agent's row, inserting it when none matched
func (r *sourceRepository) SavePolicy(ctx context.Context, policy *AgentPolicy) error {
	row := encodePolicy(policy)
	changes := make(datasource.Row, len(row))
	for k, v := range row {
		if k != "agent" && k != "created_at" {
			changes[k] = v
		}
	}

	updated, err := r.source.Update(ctx, policyTable, changes, byAgent(policy.Agent))
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	if len(updated) > 0 {
		return nil
	}
	if _, err := r.source.Insert(ctx, policyTable, []datasource.Row{row}); err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (r *sourceRepository) DeletePolicy(ctx context.Context, agent Agent) error {
	if err := r.source.Delete(ctx, policyTable, byAgent(agent)); err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	return nil
}

func encodePolicy(p *AgentPolicy) datasource.Row {
	guardrails := p.Guardrails
	if guardrails == nil {
		guardrails = datatypes.JSON(`[]`)
	}
	row := datasource.Row{
		"agent":                string(p.Agent),
		"enabled":              p.Enabled,
		"confidence_threshold": p.ConfidenceThreshold,
		"auto_respond":         p.AutoRespond,
		"guardrails":           guardrails,
		"escalation_contact":   p.EscalationContact,
		"updated_by":           nil,
		"created_at":           p.CreatedAt,
		"updated_at":           p.UpdatedAt,
	}
	if p.UpdatedBy != nil {
		row["updated_by"] = p.UpdatedBy.String()
	}
	return row
}

// decodePolicy accepts rows from either source: Postgres hands back jsonb as
// text, the REST backend as decoded JSON
func decodePolicy(row datasource.Row) (*AgentPolicy, error) {
	normalized := make(datasource.Row, len(row))
	for k, v := range row {
		normalized[k] = v
	}
	switch g := row["guardrails"].(type) {
	case string:
		normalized["guardrails"] = rawOrNil([]byte(g))
	case []byte:
		normalized["guardrails"] = rawOrNil(g)
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy row: %w", err)
	}
	var policy AgentPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to decode policy row: %w", err)
	}
	return &policy, nil
}

func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
