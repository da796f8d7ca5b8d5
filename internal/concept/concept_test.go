package concept

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIDDeterministic(t *testing.T) {
	var tenant Tenant
	id1 := DeriveID(tenant, "Cats are mammals.")
	id2 := DeriveID(tenant, "Cats are mammals.")
	require.Equal(t, id1, id2)

	other := DeriveID(tenant, "Dogs are mammals.")
	assert.NotEqual(t, id1, other)
}

func TestDeriveIDTenantScoped(t *testing.T) {
	var t1, t2 Tenant
	t2[0] = 1
	id1 := DeriveID(t1, "same content")
	id2 := DeriveID(t2, "same content")
	assert.NotEqual(t, id1, id2)
}

func TestDeriveIDNormalizesWhitespaceOnly(t *testing.T) {
	var tenant Tenant
	padded := DeriveID(tenant, "  hello  ")
	trimmed := DeriveID(tenant, "hello")
	assert.Equal(t, trimmed, padded)

	cased := DeriveID(tenant, "Hello")
	assert.NotEqual(t, trimmed, cased, "case is preserved, not folded")
}

func TestClampStrengthSaturates(t *testing.T) {
	assert.Equal(t, MaxStrength, ClampStrength(999))
	assert.Equal(t, MinStrength, ClampStrength(-5))
	assert.Equal(t, 5.0, ClampStrength(5))
}

func TestConceptAccessSaturatesAtMax(t *testing.T) {
	c := &Concept{Strength: 9.99}
	now := time.Now()
	for i := 0; i < 100; i++ {
		c.Access(now)
	}
	assert.Equal(t, MaxStrength, c.Strength)
	assert.Equal(t, uint64(100), c.AccessCount)
}

func TestAssociationStrengthenConfidenceTakesMax(t *testing.T) {
	a := &Association{Weight: 1, Confidence: 0.5}
	now := time.Now()
	a.Strengthen(2, 0.3, now)
	assert.Equal(t, 3.0, a.Weight)
	assert.Equal(t, 0.5, a.Confidence, "lower confidence must not decrease it")

	a.Strengthen(1, 0.9, now)
	assert.Equal(t, 0.9, a.Confidence)
}

func TestAssociationWeightSaturates(t *testing.T) {
	a := &Association{Weight: 9, Confidence: 1}
	a.Strengthen(5, 1, time.Now())
	assert.Equal(t, MaxWeight, a.Weight)
}

func TestParseAssocType(t *testing.T) {
	tp, ok := ParseAssocType("Semantic")
	require.True(t, ok)
	assert.Equal(t, Semantic, tp)

	_, ok = ParseAssocType("bogus")
	assert.False(t, ok)
}
