package service

import (
	"errors"
	"fmt"
	"os"

	"civicflow/models"

	"gopkg.in/yaml.v3"
)

// EscalationStep says: once a complaint is at least MinDaysOverdue days past its
// SLA deadline it must be at Level, owned by Role.
type EscalationStep struct {
	MinDaysOverdue int         `yaml:"min_days_overdue" json:"min_days_overdue"`
	Level          int         `yaml:"level" json:"level"`
	Role           models.Role `yaml:"role" json:"role"`
}

// EscalationPolicy is a monotonic step function from days overdue to escalation level.
type EscalationPolicy struct {
	Steps []EscalationStep `yaml:"levels" json:"levels"`
}

// DefaultEscalationPolicy is used when no policy file is configured.
func DefaultEscalationPolicy() *EscalationPolicy {
	return &EscalationPolicy{Steps: []EscalationStep{
		{MinDaysOverdue: 0, Level: 1, Role: models.RoleDeptHead},
		{MinDaysOverdue: 3, Level: 2, Role: models.RoleAdmin},
		{MinDaysOverdue: 7, Level: 3, Role: models.RoleMunicipalCommissioner},
		{MinDaysOverdue: 14, Level: 4, Role: models.RoleSuperAdmin},
	}}
}

// LoadEscalationPolicy reads a YAML policy file; an empty path yields the default policy.
func LoadEscalationPolicy(path string) (*EscalationPolicy, error) {
	if path == "" {
		return DefaultEscalationPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read escalation policy: %w", err)
	}
	return ParseEscalationPolicy(data)
}

// ParseEscalationPolicy decodes and validates a YAML policy.
func ParseEscalationPolicy(data []byte) (*EscalationPolicy, error) {
	var p EscalationPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse escalation policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that days and levels strictly increase and every role is known.
func (p *EscalationPolicy) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("escalation policy has no levels")
	}
	for i, step := range p.Steps {
		if step.MinDaysOverdue < 0 {
			return fmt.Errorf("escalation level %d: min_days_overdue must not be negative", step.Level)
		}
		if step.Level < 1 {
			return fmt.Errorf("escalation step %d: level must be at least 1", i)
		}
		if !step.Role.Valid() || step.Role == models.RoleCitizen || step.Role == models.RoleSystem {
			return fmt.Errorf("escalation level %d: %q is not an escalation role", step.Level, step.Role)
		}
		if i == 0 {
			continue
		}
		prev := p.Steps[i-1]
		if step.MinDaysOverdue <= prev.MinDaysOverdue || step.Level <= prev.Level {
			return fmt.Errorf("escalation level %d: days and levels must strictly increase", step.Level)
		}
	}
	return nil
}

// StepFor returns the highest step reached at daysOverdue; ok is false before the first step.
func (p *EscalationPolicy) StepFor(daysOverdue int) (step EscalationStep, ok bool) {
	for _, s := range p.Steps {
		if daysOverdue < s.MinDaysOverdue {
			break
		}
		step, ok = s, true
	}
	return step, ok
}

// LevelFor returns the level required at daysOverdue, 0 if none.
func (p *EscalationPolicy) LevelFor(daysOverdue int) int {
	step, ok := p.StepFor(daysOverdue)
	if !ok {
		return 0
	}
	return step.Level
}
