package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitAllows(t *testing.T) {
	assert.True(t, Unlimited().Allows(1_000_000))
	assert.True(t, Bounded(10).Allows(10))
	assert.False(t, Bounded(10).Allows(11))
	assert.False(t, NoAccess().Allows(0))
	assert.False(t, NoAccess().Allows(1))

	// Bounded zero allows nothing, but is distinct from NoAccess.
	assert.False(t, Bounded(0).Allows(1))
	assert.True(t, Bounded(0).Allows(0))
	assert.NotEqual(t, Bounded(0).Kind(), NoAccess().Kind())
}

func TestLimitJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Unlimited())
	require.NoError(t, err)
	assert.JSONEq(t, `{"unlimited":true}`, string(data))

	var l Limit
	require.NoError(t, json.Unmarshal([]byte(`{"value":500}`), &l))
	assert.Equal(t, LimitKindBounded, l.Kind())
	assert.EqualValues(t, 500, l.Value())

	require.NoError(t, json.Unmarshal([]byte(`{"unlimited":true}`), &l))
	assert.True(t, l.IsUnlimited())
}

func TestLimitJSONKeepsNoAccessDistinct(t *testing.T) {
	// A stored no-access limit must round-trip as no-access, not as a
	// zero ceiling.
	data, err := json.Marshal(NoAccess())
	require.NoError(t, err)
	assert.JSONEq(t, `{"none":true}`, string(data))

	var l Limit
	require.NoError(t, json.Unmarshal(data, &l))
	assert.Equal(t, LimitKindNoAccess, l.Kind())

	// An explicit zero ceiling stays bounded.
	data, err = json.Marshal(Bounded(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":0}`, string(data))

	require.NoError(t, json.Unmarshal(data, &l))
	assert.Equal(t, LimitKindBounded, l.Kind())
	assert.EqualValues(t, 0, l.Value())

	// Nothing stored at all fails closed.
	require.NoError(t, json.Unmarshal([]byte(`{}`), &l))
	assert.Equal(t, LimitKindNoAccess, l.Kind())
}

func TestPlanFeatureAndLimitResolution(t *testing.T) {
	p := &Plan{
		Features: FeatureMatrix{FeatureSMS: true, FeatureReports: false},
		Limits:   LimitMatrix{LimitSMSCredits: Bounded(100)},
	}

	assert.True(t, p.HasFeature(FeatureSMS))
	assert.False(t, p.HasFeature(FeatureReports))

	// Keys absent from the matrices resolve to denied, never to unlimited.
	assert.False(t, p.HasFeature(FeatureScheduledMessages))
	assert.Equal(t, NoAccess(), p.LimitFor(LimitMaxBranches))

	assert.Equal(t, Bounded(100), p.LimitFor(LimitSMSCredits))
}

func TestPlanNilMatrices(t *testing.T) {
	p := &Plan{}
	assert.False(t, p.HasFeature(FeatureSMS))
	assert.Equal(t, NoAccess(), p.LimitFor(LimitSMSCredits))
}
