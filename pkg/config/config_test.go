package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	resetGlobal(t)
	assert.False(t, IsInitialized())
	assert.Nil(t, GetBudget())
	assert.Nil(t, GetLLM())

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Initialize(path))
	require.True(t, IsInitialized())

	ids := []string{}
	for _, s := range Global().GetSections() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"budget", "healing", "authoring", "llm", "checkpoint"}, ids)
	assert.NotNil(t, GetBudget())
	assert.NotNil(t, GetHealing())
	assert.NotNil(t, GetAuthoring())
	assert.NotNil(t, GetLLM())
	assert.NotNil(t, GetCheckpoint())
}

func TestInitializeLoadsSavedSections(t *testing.T) {
	resetGlobal(t)
	path := filepath.Join(t.TempDir(), "config.json")

	require.NoError(t, Initialize(path))
	GetLLM().SetModel("gpt-4o")
	require.NoError(t, GetHealing().SetData(map[string]interface{}{"min_confidence": 0.75}))
	require.NoError(t, Global().SaveAll())

	resetGlobal(t)
	require.NoError(t, Initialize(path))
	assert.Equal(t, "gpt-4o", GetLLM().GetModel())
	assert.Equal(t, 0.75, GetHealing().Settings().MinConfidence)
}

func TestInitializeRejectsInvalidSection(t *testing.T) {
	resetGlobal(t)
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{"version": "1", "sections": {"budget": {"downgrade_order": ["explode"]}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	err := Initialize(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
	assert.False(t, IsInitialized())
}

func TestBuildProvider(t *testing.T) {
	resetGlobal(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := BuildProvider("", "", "")
	assert.Error(t, err, "no key anywhere")

	require.NoError(t, Initialize(filepath.Join(t.TempDir(), "config.json")))
	GetLLM().SetModel("from-config")
	GetLLM().SetAPIKey("sk-config")

	p, err := BuildProvider("", "", "")
	require.NoError(t, err)
	assert.Equal(t, "from-config", p.GetModel())

	p, err = BuildProvider("from-flag", "http://llm.local/v1", "")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", p.GetModel())
	assert.Equal(t, "http://llm.local/v1", p.GetBaseURL())
}
