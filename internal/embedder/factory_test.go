package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "")
}

func TestNewFromEnv_DefaultsToLocal(t *testing.T) {
	clearEnv(t)

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
}

func TestNewFromEnv_ExplicitProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProvider, "local")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
}

func TestNewFromEnv_ExplicitProviderWithoutKeyFails(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProvider, "openai")

	_, err := NewFromEnv()
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestNewFromEnv_UnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvProvider, "bogus")

	_, err := NewFromEnv()
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestNewFromEnv_AutoDetectOpenAI(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIAPIKey, "sk-test")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, emb.Provider())
	assert.Equal(t, DefaultOpenAIModel, emb.Model())
}

func TestNewFromEnv_AutoDetectJina(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvJinaAPIKey, "jina-test")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, emb.Provider())
}

func TestNewFromEnv_OpenAIWinsOverJina(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvJinaAPIKey, "jina-test")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, emb.Provider())
}

func TestDetectProvider(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, ProviderLocal, DetectProvider())

	t.Setenv(EnvJinaAPIKey, "jina-test")
	assert.Equal(t, ProviderJina, DetectProvider())

	t.Setenv(EnvProvider, "LOCAL")
	assert.Equal(t, ProviderLocal, DetectProvider())
}
