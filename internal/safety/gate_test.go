package safety

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTradeLog is an in-memory TradeLog for gate and limiter tests.
type fakeTradeLog struct {
	lastBuy  map[string]time.Time
	lastSell map[string]time.Time
	firstBuy map[string]time.Time
	trades   []time.Time
	failWith error
}

func newFakeTradeLog() *fakeTradeLog {
	return &fakeTradeLog{
		lastBuy:  make(map[string]time.Time),
		lastSell: make(map[string]time.Time),
		firstBuy: make(map[string]time.Time),
	}
}

func (f *fakeTradeLog) LastTrade(symbol, side string) (time.Time, bool, error) {
	if f.failWith != nil {
		return time.Time{}, false, f.failWith
	}
	m := f.lastBuy
	if side == "SELL" {
		m = f.lastSell
	}
	ts, ok := m[symbol]
	return ts, ok, nil
}

func (f *fakeTradeLog) FirstBuy(symbol string) (time.Time, bool, error) {
	if f.failWith != nil {
		return time.Time{}, false, f.failWith
	}
	ts, ok := f.firstBuy[symbol]
	return ts, ok, nil
}

func (f *fakeTradeLog) CountSince(since time.Time) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	n := 0
	for _, ts := range f.trades {
		if !ts.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeTradeLog) LastTradeTime() (time.Time, bool, error) {
	if f.failWith != nil {
		return time.Time{}, false, f.failWith
	}
	if len(f.trades) == 0 {
		return time.Time{}, false, nil
	}
	latest := f.trades[0]
	for _, ts := range f.trades[1:] {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest, true, nil
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(tl TradeLog) *Gate {
	g := NewGate(tl, GateConfig{
		BuyCooldownDays:  30,
		SellCooldownDays: 30,
		MinHoldDays:      90,
		MaxLossThreshold: -0.20,
	}, zerolog.Nop())
	g.now = func() time.Time { return testNow }
	return g
}

func buyAction(symbol string) domain.ActionCandidate {
	return domain.ActionCandidate{Side: "BUY", Symbol: symbol, Quantity: 10, Price: 100, ValueEUR: 1000}
}

func sellAction(symbol string) domain.ActionCandidate {
	return domain.ActionCandidate{Side: "SELL", Symbol: symbol, Quantity: 10, Price: 100, ValueEUR: 1000}
}

func TestGate_BuyCooldownBlocks(t *testing.T) {
	tl := newFakeTradeLog()
	tl.lastBuy["AAPL"] = testNow.Add(-10 * 24 * time.Hour)
	g := newTestGate(tl)

	err := g.CheckAction(buyAction("AAPL"), nil)
	assert.ErrorIs(t, err, domain.ErrSafetyRejected)

	// Outside the cooldown window the buy passes.
	tl.lastBuy["AAPL"] = testNow.Add(-31 * 24 * time.Hour)
	assert.NoError(t, g.CheckAction(buyAction("AAPL"), nil))
}

func TestGate_SellCooldownBlocks(t *testing.T) {
	tl := newFakeTradeLog()
	tl.lastSell["SAP"] = testNow.Add(-5 * 24 * time.Hour)
	g := newTestGate(tl)

	pos := &domain.Position{Symbol: "SAP", Quantity: 10, AvgPrice: 100, CurrentPrice: 110}
	err := g.CheckAction(sellAction("SAP"), pos)
	assert.ErrorIs(t, err, domain.ErrSafetyRejected)
}

func TestGate_MinHoldBlocks(t *testing.T) {
	tl := newFakeTradeLog()
	tl.firstBuy["NVDA"] = testNow.Add(-30 * 24 * time.Hour)
	g := newTestGate(tl)

	pos := &domain.Position{Symbol: "NVDA", Quantity: 5, AvgPrice: 100, CurrentPrice: 180}
	err := g.CheckAction(sellAction("NVDA"), pos)
	assert.ErrorIs(t, err, domain.ErrSafetyRejected)

	tl.firstBuy["NVDA"] = testNow.Add(-91 * 24 * time.Hour)
	assert.NoError(t, g.CheckAction(sellAction("NVDA"), pos))
}

func TestGate_MaxLossBlocksDeepLoss(t *testing.T) {
	g := newTestGate(newFakeTradeLog())

	// Down 30%: blocked.
	pos := &domain.Position{Symbol: "BABA", Quantity: 10, AvgPrice: 100, CurrentPrice: 70}
	err := g.CheckAction(sellAction("BABA"), pos)
	require.ErrorIs(t, err, domain.ErrSafetyRejected)
	assert.Contains(t, err.Error(), "loss threshold")

	// Down 10%: allowed.
	pos.CurrentPrice = 90
	assert.NoError(t, g.CheckAction(sellAction("BABA"), pos))
}

func TestGate_SellWithoutPositionBlocked(t *testing.T) {
	g := newTestGate(newFakeTradeLog())
	err := g.CheckAction(sellAction("GHOST"), nil)
	assert.ErrorIs(t, err, domain.ErrSafetyRejected)
}

func TestGate_FilterCandidatesDropsBlocked(t *testing.T) {
	tl := newFakeTradeLog()
	tl.lastBuy["AAPL"] = testNow.Add(-1 * 24 * time.Hour)
	g := newTestGate(tl)

	positions := []domain.Position{
		{Symbol: "SAP", Quantity: 10, AvgPrice: 100, CurrentPrice: 110},
	}
	candidates := []domain.ActionCandidate{
		buyAction("AAPL"), // blocked by cooldown
		buyAction("MSFT"),
		sellAction("SAP"),
	}

	eligible := g.FilterCandidates(candidates, positions)
	require.Len(t, eligible, 2)
	assert.Equal(t, "MSFT", eligible[0].Symbol)
	assert.Equal(t, "SAP", eligible[1].Symbol)
}

func newTestLimiter(tl TradeLog, cfg FrequencyConfig) *FrequencyLimiter {
	l := NewFrequencyLimiter(tl, cfg, zerolog.Nop())
	l.now = func() time.Time { return testNow }
	return l
}

func TestLimiter_DailyCapBlocks(t *testing.T) {
	tl := newFakeTradeLog()
	for i := 0; i < 4; i++ {
		tl.trades = append(tl.trades, testNow.Add(-time.Duration(i+2)*time.Hour))
	}
	l := newTestLimiter(tl, FrequencyConfig{Enabled: true, MaxTradesPerDay: 4})

	err := l.CheckExecution()
	require.ErrorIs(t, err, domain.ErrSafetyRejected)
	assert.Contains(t, err.Error(), "daily limit")
}

func TestLimiter_WeeklyCapBlocks(t *testing.T) {
	tl := newFakeTradeLog()
	for i := 0; i < 10; i++ {
		tl.trades = append(tl.trades, testNow.Add(-time.Duration(i+1)*24*time.Hour/2))
	}
	l := newTestLimiter(tl, FrequencyConfig{Enabled: true, MaxTradesPerWeek: 10})

	err := l.CheckExecution()
	require.ErrorIs(t, err, domain.ErrSafetyRejected)
	assert.Contains(t, err.Error(), "weekly limit")
}

func TestLimiter_SpacingBlocks(t *testing.T) {
	tl := newFakeTradeLog()
	tl.trades = append(tl.trades, testNow.Add(-10*time.Minute))
	l := newTestLimiter(tl, FrequencyConfig{Enabled: true, MinTimeBetweenTradesMinutes: 30})

	assert.ErrorIs(t, l.CheckExecution(), domain.ErrSafetyRejected)
}

func TestLimiter_FailsClosedOnStorageError(t *testing.T) {
	tl := newFakeTradeLog()
	tl.failWith = errors.New("disk gone")
	l := newTestLimiter(tl, FrequencyConfig{Enabled: true, MaxTradesPerDay: 4})

	assert.ErrorIs(t, l.CheckExecution(), domain.ErrSafetyRejected)
}

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	tl := newFakeTradeLog()
	tl.failWith = errors.New("disk gone")
	l := newTestLimiter(tl, FrequencyConfig{Enabled: false, MaxTradesPerDay: 1})

	assert.NoError(t, l.CheckExecution())
}

func TestTradeLogStore_RoundTrip(t *testing.T) {
	store, err := NewTradeLogStore(t.TempDir()+"/trades.db", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().Truncate(time.Second)
	require.NoError(t, store.RecordTrade("AAPL", "BUY", 10, 150, now.Add(-48*time.Hour)))
	require.NoError(t, store.RecordTrade("AAPL", "BUY", 5, 155, now.Add(-24*time.Hour)))
	require.NoError(t, store.RecordTrade("AAPL", "SELL", 5, 160, now.Add(-1*time.Hour)))

	last, found, err := store.LastTrade("AAPL", "BUY")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now.Add(-24*time.Hour).Unix(), last.Unix())

	first, found, err := store.FirstBuy("AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now.Add(-48*time.Hour).Unix(), first.Unix())

	count, err := store.CountSince(now.Add(-25 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	latest, found, err := store.LastTradeTime()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now.Add(-1*time.Hour).Unix(), latest.Unix())
}
