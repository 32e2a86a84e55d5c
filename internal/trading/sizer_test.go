package trading

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestPositionSizeConcentrationCapWins(t *testing.T) {
	// $100k portfolio, 80 confidence, $150 entry, $140 stop, 10% cap.
	// Kelly allows 200 shares and the risk budget 200, but the 10% cap
	// holds the position to 66 shares ($9,900).
	shares, err := PositionSize(d("150"), dp("140"), d("100000"), d("100000"), 0.10, 80)
	require.NoError(t, err)
	assert.Equal(t, int64(66), shares)
}

func TestPositionSizeRiskBudgetWins(t *testing.T) {
	// A stop $25 away risks $25/share, so the 2% budget ($2,000) allows
	// only 80 shares even though the cap would allow 100.
	shares, err := PositionSize(d("100"), dp("75"), d("100000"), d("100000"), 0.10, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(80), shares)
}

func TestPositionSizeKellyWins(t *testing.T) {
	// Confidence 52 gives a half-Kelly fraction of 2%: 20 shares at $100.
	shares, err := PositionSize(d("100"), dp("95"), d("100000"), d("100000"), 0.25, 52)
	require.NoError(t, err)
	assert.Equal(t, int64(20), shares)
}

func TestPositionSizeImpliedRiskWithoutStop(t *testing.T) {
	// With no stop the per-share risk is 5% of entry: $5 at $100, so the
	// 2% budget allows 400 shares and the 10% cap wins at 100.
	withStop, err := PositionSize(d("100"), nil, d("100000"), d("100000"), 0.10, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(100), withStop)

	// Shrink the cap so the implied risk budget is the binding limit.
	implied, err := PositionSize(d("100"), nil, d("100000"), d("100000"), 0.90, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(400), implied)
}

func TestPositionSizeWiderStopNeverIncreasesSize(t *testing.T) {
	prev := int64(1 << 30)
	for _, stop := range []string{"99", "95", "90", "80", "60"} {
		shares, err := PositionSize(d("100"), dp(stop), d("100000"), d("100000"), 0.50, 95)
		require.NoError(t, err)
		assert.LessOrEqual(t, shares, prev, "stop %s", stop)
		prev = shares
	}
}

func TestPositionSizeCashFloor(t *testing.T) {
	// Plenty of conviction but only $500 on hand: 5 shares at $100.
	shares, err := PositionSize(d("100"), dp("90"), d("100000"), d("500"), 0.50, 95)
	require.NoError(t, err)
	assert.Equal(t, int64(5), shares)

	total := decimal.NewFromInt(shares).Mul(d("100"))
	assert.True(t, total.LessThanOrEqual(d("500")))
}

func TestPositionSizeMinimumOneShare(t *testing.T) {
	// Even a tiny budget produces a 1-share position rather than zero.
	shares, err := PositionSize(d("5000"), dp("4900"), d("10000"), d("10000"), 0.01, 55)
	require.NoError(t, err)
	assert.Equal(t, int64(1), shares)
}

func TestPositionSizeDefaultConfidence(t *testing.T) {
	// Zero confidence falls back to 50, whose Kelly fraction is zero,
	// leaving the 1-share floor.
	shares, err := PositionSize(d("100"), dp("90"), d("100000"), d("100000"), 0.10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), shares)
}

func TestPositionSizeRejectsNonPositivePrice(t *testing.T) {
	_, err := PositionSize(d("0"), nil, d("100000"), d("100000"), 0.10, 80)
	require.Error(t, err)
	_, err = PositionSize(d("-5"), nil, d("100000"), d("100000"), 0.10, 80)
	require.Error(t, err)
}
