package recipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "v001", want: "v002"},
		{in: "v009", want: "v010"},
		{in: "v099", want: "v100"},
		{in: "v999", want: "v1000"},
		{in: "v1000", want: "v1001"},
		{in: "v1", wantErr: true},
		{in: "001", wantErr: true},
		{in: "vabc", wantErr: true},
		{in: "v-01", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NextVersion(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidVersion))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v001", FormatVersion(1))
	assert.Equal(t, "v042", FormatVersion(42))
	assert.Equal(t, "v12345", FormatVersion(12345))
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleRecipe()
	c := orig.Clone()
	require.Equal(t, orig, c)

	c.Actions["search_box"] = ActionEntry{Instruction: "changed"}
	c.Selectors["price"].Fallbacks[0] = "mutated"
	c.Workflow.Steps[1].Expect[0].Value = "/changed"
	c.Workflow.Vars["filters"].([]interface{})[0] = "cotton"
	c.Policies["cheapest"].TieBreak[0] = "rating"
	c.Fingerprints["home"].MustText[0] = "Other"

	fresh := sampleRecipe()
	assert.Equal(t, fresh, orig, "mutating the clone must not touch the original")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, sampleRecipe().Validate())

	r := sampleRecipe()
	r.Workflow.Steps = append(r.Workflow.Steps, WorkflowStep{ID: "open", Op: StepWait})
	assert.ErrorIs(t, r.Validate(), ErrInvalidDocument)

	r = sampleRecipe()
	r.Workflow.Steps[0].Op = "teleport"
	assert.ErrorIs(t, r.Validate(), ErrInvalidDocument)

	r = sampleRecipe()
	r.Version = "1"
	assert.ErrorIs(t, r.Validate(), ErrInvalidVersion)
}

func TestStepLookup(t *testing.T) {
	r := sampleRecipe()
	s, err := r.Step("search")
	require.NoError(t, err)
	assert.Equal(t, "search_box", s.TargetKey)

	_, err = r.Step("missing")
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestSelectorCandidates(t *testing.T) {
	s := SelectorEntry{Primary: "#a", Fallbacks: []string{"#b", "#a", "", "#c"}}
	assert.Equal(t, []string{"#a", "#b", "#c"}, s.Candidates())
}
