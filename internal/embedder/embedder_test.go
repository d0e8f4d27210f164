package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("some rule text")
	b := ComputeHash("some rule text")
	c := ComputeHash("different rule text")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex-encoded SHA-256
}

func TestCache_GetSet(t *testing.T) {
	cache := NewCache(10)

	emb := &Embedding{
		Vector:    []float32{1, 2, 3},
		Dimension: 3,
		Provider:  ProviderLocal,
		Model:     "hash-embeddings",
		Hash:      "abc",
	}
	cache.Set("abc", emb)

	got, ok := cache.Get("abc")
	require.True(t, ok)
	assert.Equal(t, emb.Vector, got.Vector)

	// Returned copy is independent of the cached value
	got.Vector[0] = 99
	again, ok := cache.Get("abc")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestCache_Eviction(t *testing.T) {
	cache := NewCache(2)

	cache.Set("a", &Embedding{Hash: "a"})
	cache.Set("b", &Embedding{Hash: "b"})
	cache.Set("c", &Embedding{Hash: "c"})

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok) // least recently used entry evicted
}

func TestLocalProvider_Deterministic(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	first, err := provider.Embed(ctx, "timely filing deadline is 90 days")
	require.NoError(t, err)
	second, err := provider.Embed(ctx, "timely filing deadline is 90 days")
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, LocalDimension, first.Dimension)
	assert.Len(t, first.Vector, LocalDimension)
	assert.Equal(t, ProviderLocal, first.Provider)

	other, err := provider.Embed(ctx, "completely different text")
	require.NoError(t, err)
	assert.NotEqual(t, first.Vector, other.Vector)
}

func TestLocalProvider_UnitLength(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	emb, err := provider.Embed(context.Background(), "some rule content")
	require.NoError(t, err)

	var sum float64
	for _, v := range emb.Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 0.0001)
}

func TestLocalProvider_EmptyTextRejected(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	_, err = provider.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestLocalProvider_Batch(t *testing.T) {
	provider, err := NewLocalProvider(NewCache(10))
	require.NoError(t, err)

	texts := []string{"first rule", "second rule", "third rule"}
	resp, err := provider.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, resp.Embeddings, len(texts))
	assert.Equal(t, ProviderLocal, resp.Provider)

	// Order matches input order
	single, err := provider.Embed(context.Background(), "second rule")
	require.NoError(t, err)
	assert.Equal(t, single.Vector, resp.Embeddings[1].Vector)
}

func TestValidateBatch(t *testing.T) {
	assert.ErrorIs(t, validateBatch(nil), ErrInvalidInput)
	assert.ErrorIs(t, validateBatch([]string{"ok", ""}), ErrInvalidInput)
	assert.NoError(t, validateBatch([]string{"ok", "also ok"}))
}

func TestModelTag(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)
	assert.Equal(t, "local:hash-embeddings", ModelTag(provider))
}

func TestNormalizeVector(t *testing.T) {
	normalized := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(normalized[0]), 0.0001)
	assert.InDelta(t, 0.8, float64(normalized[1]), 0.0001)

	// Zero vector stays zero
	zero := NormalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestNewProviders_RequireAPIKeys(t *testing.T) {
	_, err := NewOpenAIProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewJinaProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "cohere"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}
