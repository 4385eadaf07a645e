package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/timeoff"
)

func TestParsePolicy_Defaults(t *testing.T) {
	f := NewPolicyFactory()

	p, err := f.ParsePolicy(`{"resource": "remote_work_days", "unit": "days", "default_grant": "4"}`)
	require.NoError(t, err)

	assert.Equal(t, "remote_work_days", p.ID())
	assert.Equal(t, "custom", p.Resource.ResourceDomain())
	assert.Equal(t, generic.UnitDays, p.Unit)
	assert.False(t, p.Periodic)
	assert.Equal(t, generic.TwoStage, p.Workflow)
	assert.True(t, p.Ledgered)
	assert.True(t, p.DefaultGrant.Equal(decimal.NewFromInt(4)))
}

func TestParsePolicy_RegisteredResourceKeepsDomainType(t *testing.T) {
	f := NewPolicyFactory()

	p, err := f.ParsePolicy(`{"resource": "vacation_days", "unit": "days", "period_type": "calendar_year", "default_grant": 20}`)
	require.NoError(t, err)

	assert.Equal(t, timeoff.ResourceVacation, p.Resource)
	assert.True(t, p.Periodic)
	assert.Equal(t, "20", p.DefaultGrant.String())
}

func TestParsePolicy_Invalid(t *testing.T) {
	f := NewPolicyFactory()

	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"missing resource", `{"unit": "days"}`},
		{"bad unit", `{"resource": "x", "unit": "points"}`},
		{"bad workflow", `{"resource": "x", "unit": "days", "workflow": "one_stage"}`},
		{"bad period", `{"resource": "x", "unit": "days", "period_type": "fiscal_year"}`},
		{"negative grant", `{"resource": "x", "unit": "days", "default_grant": "-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParsePolicy(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	// GIVEN: a file with two custom banks
	path := filepath.Join(t.TempDir(), "policies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"resource": "volunteer_hours", "domain": "benefits", "unit": "hours", "period_type": "calendar_year", "default_grant": "16"},
		{"resource": "oncall_claims", "unit": "hours", "workflow": "three_stage", "ledgered": false}
	]`), 0o644))

	// WHEN: loaded
	policies, err := NewPolicyFactory().LoadFile(path)

	// THEN: both parse with their own rules
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, "benefits", policies[0].Resource.ResourceDomain())
	assert.True(t, policies[0].Periodic)
	assert.Equal(t, generic.ThreeStage, policies[1].Workflow)
	assert.False(t, policies[1].Ledgered)
}

func TestParsePolicies_Duplicate(t *testing.T) {
	_, err := NewPolicyFactory().ParsePolicies([]byte(`[
		{"resource": "a", "unit": "days"},
		{"resource": "a", "unit": "hours"}
	]`))
	assert.ErrorContains(t, err, "duplicate resource")
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := NewPolicyFactory()
	original := timeoff.SickPolicy(decimal.NewFromInt(15))

	pj := f.ToJSON(original)
	assert.Equal(t, "sick_days", pj.Resource)
	assert.Equal(t, "timeoff", pj.Domain)
	assert.Equal(t, PeriodCalendarYear, pj.PeriodType)

	back, err := f.FromJSON(pj)
	require.NoError(t, err)
	assert.Equal(t, original.Resource, back.Resource)
	assert.Equal(t, original.Periodic, back.Periodic)
	assert.Equal(t, original.Workflow, back.Workflow)
	assert.True(t, original.DefaultGrant.Equal(back.DefaultGrant))
}
