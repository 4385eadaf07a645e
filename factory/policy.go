/*
Package factory provides JSON to Go resource policy conversion.

PURPOSE:
  Converts JSON resource definitions into generic.ResourcePolicy values so
  extra banks (remote work days, volunteer hours, ...) can be added to a
  deployment without code changes. The shipped offset, sick, vacation and
  overtime policies stay in Go.

JSON SCHEMA:
  [
    {
      "resource": "volunteer_hours",
      "domain": "benefits",
      "unit": "hours",
      "period_type": "calendar_year",
      "default_grant": "16",
      "workflow": "two_stage",
      "ledgered": true
    }
  ]

DEFAULTS:
  - domain:      "custom"
  - period_type: "perpetual"
  - workflow:    "two_stage"
  - ledgered:    true

USAGE:
  f := factory.NewPolicyFactory()
  policies, err := f.LoadFile("policies.json")
  for _, p := range policies {
      engine.RegisterPolicy(p)
  }

  // Back to JSON (GET /api/policies)
  pj := f.ToJSON(engine.Policies()[0])

SEE ALSO:
  - generic/policy.go: ResourcePolicy type definition
  - timeoff/policies.go, overtime/types.go: Go-based policies
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

const (
	PeriodCalendarYear = "calendar_year"
	PeriodPerpetual    = "perpetual"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a resource policy.
type PolicyJSON struct {
	Resource     string          `json:"resource" validate:"required,max=64"`
	Domain       string          `json:"domain,omitempty"`
	Unit         string          `json:"unit" validate:"required,oneof=days hours"`
	PeriodType   string          `json:"period_type,omitempty" validate:"omitempty,oneof=calendar_year perpetual"`
	DefaultGrant decimal.Decimal `json:"default_grant"`
	Workflow     string          `json:"workflow,omitempty" validate:"omitempty,oneof=two_stage three_stage"`
	Ledgered     *bool           `json:"ledgered,omitempty"` // default true
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct {
	validate *validator.Validate
}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{validate: validator.New()}
}

// ParsePolicy parses a single JSON object into a ResourcePolicy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (generic.ResourcePolicy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return generic.ResourcePolicy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParsePolicies parses a JSON array of policies. Duplicate resources are
// rejected.
func (f *PolicyFactory) ParsePolicies(data []byte) ([]generic.ResourcePolicy, error) {
	var pjs []PolicyJSON
	if err := json.Unmarshal(data, &pjs); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	seen := make(map[string]bool, len(pjs))
	out := make([]generic.ResourcePolicy, 0, len(pjs))
	for i, pj := range pjs {
		if seen[pj.Resource] {
			return nil, fmt.Errorf("policy %d: duplicate resource %q", i, pj.Resource)
		}
		seen[pj.Resource] = true
		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFile reads a JSON array of policies from disk.
func (f *PolicyFactory) LoadFile(path string) ([]generic.ResourcePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return f.ParsePolicies(data)
}

// FromJSON converts PolicyJSON to a generic.ResourcePolicy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (generic.ResourcePolicy, error) {
	if err := f.validate.Struct(pj); err != nil {
		return generic.ResourcePolicy{}, &generic.ValidationError{Field: "policy", Reason: err.Error()}
	}

	domain := pj.Domain
	if domain == "" {
		domain = "custom"
	}
	resource := generic.GetOrCreateResource(pj.Resource, domain)

	workflow := generic.TwoStage
	if pj.Workflow != "" {
		workflow = generic.WorkflowKind(pj.Workflow)
	}
	ledgered := true
	if pj.Ledgered != nil {
		ledgered = *pj.Ledgered
	}

	policy := generic.ResourcePolicy{
		Resource:     resource,
		Unit:         generic.Unit(pj.Unit),
		Periodic:     pj.PeriodType == PeriodCalendarYear,
		DefaultGrant: pj.DefaultGrant,
		Workflow:     workflow,
		Ledgered:     ledgered,
	}
	if err := policy.Validate(); err != nil {
		return generic.ResourcePolicy{}, err
	}
	return policy, nil
}

// ToJSON converts a ResourcePolicy to PolicyJSON.
func (f *PolicyFactory) ToJSON(policy generic.ResourcePolicy) PolicyJSON {
	period := PeriodPerpetual
	if policy.Periodic {
		period = PeriodCalendarYear
	}
	ledgered := policy.Ledgered
	return PolicyJSON{
		Resource:     policy.ID(),
		Domain:       policy.Resource.ResourceDomain(),
		Unit:         string(policy.Unit),
		PeriodType:   period,
		DefaultGrant: policy.DefaultGrant,
		Workflow:     string(policy.Workflow),
		Ledgered:     &ledgered,
	}
}
