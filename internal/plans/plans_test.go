package plans

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingTableMatchesCheckoutScenario(t *testing.T) {
	lite, err := Purchasable(PlanLite)
	require.NoError(t, err)
	assert.Equal(t, int64(19900), lite.Amount)
	assert.Equal(t, Minutes(60), lite.Minutes)
	assert.True(t, lite.IsPremium())
	assert.InDelta(t, 199.0, lite.AmountMajor(), 0.001)
}

func TestFreePlanIsNotPurchasable(t *testing.T) {
	_, err := Purchasable(PlanFree)
	require.Error(t, err)

	_, err = Purchasable("gold")
	require.Error(t, err)
}

func TestEveryPaidPlanHasPositiveAmountAndEntitlement(t *testing.T) {
	for _, p := range All() {
		if p.Type == PlanFree {
			assert.Equal(t, FreeMinutes, p.Minutes)
			continue
		}
		assert.Positive(t, p.Amount, p.Type)
		assert.True(t, p.Minutes.Available(), p.Type)
	}
}

func TestAllIsOrderedByPrice(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	assert.Equal(t, PlanFree, all[0].Type)
	assert.Equal(t, PlanMax, all[3].Type)
}

func TestParse(t *testing.T) {
	got, err := Parse("  PRO ")
	require.NoError(t, err)
	assert.Equal(t, PlanPro, got)

	_, err = Parse("enterprise")
	assert.Error(t, err)
}

func TestDurationToMinutesRoundsUp(t *testing.T) {
	cases := map[int64]int64{0: 0, -5: 0, 1: 1, 59: 1, 60: 1, 61: 2, 600: 10}
	for seconds, want := range cases {
		assert.Equal(t, want, DurationToMinutes(seconds), "seconds=%d", seconds)
	}
}

func TestMinutesSubClampsAtZero(t *testing.T) {
	assert.Equal(t, Minutes(0), Minutes(2).Sub(5))
	assert.Equal(t, Minutes(3), Minutes(5).Sub(2))
	assert.Equal(t, Minutes(5), Minutes(5).Sub(-1))
	assert.Equal(t, Unlimited, Unlimited.Sub(1000))
	assert.False(t, Minutes(0).Available())
	assert.True(t, Unlimited.Available())
}

func TestMinutesJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Minutes `json:"a"`
		B Minutes `json:"b"`
	}{A: 42, B: Unlimited})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":42,"b":"unlimited"}`, string(data))

	var m Minutes
	require.NoError(t, json.Unmarshal([]byte(`"unlimited"`), &m))
	assert.True(t, m.IsUnlimited())
	require.NoError(t, json.Unmarshal([]byte(`17`), &m))
	assert.Equal(t, Minutes(17), m)
	assert.Error(t, json.Unmarshal([]byte(`"lots"`), &m))
}
