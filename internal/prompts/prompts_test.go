package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/frontdesk/internal/models"
)

func TestDefault(t *testing.T) {
	set, err := Default()
	require.NoError(t, err)
	assert.Contains(t, set.Classification, "appointment_related")
	assert.Contains(t, set.WhenParser, "understood=false")
	assert.Contains(t, set.Information, "{{fallback}}")
	assert.NotEmpty(t, set.Jailbreak)
}

func TestParse_OverridesOnlyGivenKeys(t *testing.T) {
	set, err := Parse([]byte("business_name: Bright Smiles Dental\n"))
	require.NoError(t, err)
	assert.Equal(t, "Bright Smiles Dental", set.BusinessName)
	assert.Contains(t, set.Classification, "get_information")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("business_name: [unterminated"))
	assert.Error(t, err)
}

func TestForUser(t *testing.T) {
	set, err := Default()
	require.NoError(t, err)

	custom := set.ForUser(&models.AgentSettings{InformationPrompt: "We open at 8."})
	assert.Equal(t, "We open at 8.", custom.Information)
	assert.Equal(t, set.Classification, custom.Classification)
	assert.Equal(t, set, set.ForUser(nil))
}

func TestRender(t *testing.T) {
	got := Render("Hello {{name}}, today is {{day}}.", map[string]string{"name": "Ana", "day": "Tuesday"})
	assert.Equal(t, "Hello Ana, today is Tuesday.", got)
}
