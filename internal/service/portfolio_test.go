package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalens/avalens/internal/domain"
)

type memSnapshotStore struct {
	snaps []domain.PortfolioSnapshot
}

func (m *memSnapshotStore) Save(_ context.Context, snap domain.PortfolioSnapshot) error {
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memSnapshotStore) ListByWallet(_ context.Context, wallet string, since time.Time) ([]domain.PortfolioSnapshot, error) {
	var out []domain.PortfolioSnapshot
	for _, s := range m.snaps {
		if s.WalletAddress == wallet && !s.TakenAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSnapshotStore) ListBefore(_ context.Context, before time.Time) ([]domain.PortfolioSnapshot, error) {
	var out []domain.PortfolioSnapshot
	for _, s := range m.snaps {
		if s.TakenAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

type memBlob struct {
	paths []string
	data  [][]byte
}

func (m *memBlob) Put(_ context.Context, path string, data []byte, _ string) error {
	m.paths = append(m.paths, path)
	m.data = append(m.data, data)
	return nil
}

type recordingInvalidator struct {
	wallets []string
}

func (r *recordingInvalidator) InvalidateWallet(address string) {
	r.wallets = append(r.wallets, address)
}

func newTestPortfolioService(positions *fakePositions, snaps *memSnapshotStore, blob *memBlob, inv *recordingInvalidator) *PortfolioService {
	agg := NewAggregator(positions, &fakePrices{}, &fakeProtocols{}, 43114, testLogger())
	var blobWriter domain.BlobWriter
	if blob != nil {
		blobWriter = blob
	}
	var invalidator WalletInvalidator
	if inv != nil {
		invalidator = inv
	}
	s := NewPortfolioService(agg, snaps, blobWriter, nil, invalidator, testLogger())
	s.now = func() time.Time { return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "snap-1" }
	return s
}

func TestFetchRecordsSnapshotAndArchives(t *testing.T) {
	positions := &fakePositions{byAddress: map[string][]domain.Position{
		addrA: {walletPosition("p1", "USDC", "0xusdc", 1000, 1)},
	}}
	snaps := &memSnapshotStore{}
	blob := &memBlob{}
	s := newTestPortfolioService(positions, snaps, blob, nil)

	p, err := s.Fetch(context.Background(), []string{addrAMixed})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.TotalValueUSD)

	require.Len(t, snaps.snaps, 1)
	snap := snaps.snaps[0]
	assert.Equal(t, addrA, snap.WalletAddress)
	assert.Equal(t, 1000.0, snap.TotalValueUSD)
	assert.Equal(t, 1, snap.TokenCount)

	require.Len(t, blob.paths, 1)
	assert.Equal(t, "snapshots/"+addrA+"/2026-08-28T10:00:00Z.json", blob.paths[0])
}

func TestRefreshInvalidatesFirst(t *testing.T) {
	positions := &fakePositions{byAddress: map[string][]domain.Position{
		addrA: {walletPosition("p1", "USDC", "0xusdc", 1000, 1)},
	}}
	inv := &recordingInvalidator{}
	s := newTestPortfolioService(positions, &memSnapshotStore{}, nil, inv)

	_, err := s.Refresh(context.Background(), []string{addrAMixed})
	require.NoError(t, err)
	assert.Equal(t, []string{addrA}, inv.wallets)
}

func TestHistoryComputesChanges(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	snaps := &memSnapshotStore{snaps: []domain.PortfolioSnapshot{
		{WalletAddress: addrA, TotalValueUSD: 100000, TakenAt: now.AddDate(0, 0, -30)},
		{WalletAddress: addrA, TotalValueUSD: 110000, TakenAt: now.AddDate(0, 0, -7)},
		{WalletAddress: addrA, TotalValueUSD: 120000, TakenAt: now.Add(-25 * time.Hour)},
		{WalletAddress: addrA, TotalValueUSD: 126000, TakenAt: now.Add(-time.Hour)},
	}}
	s := newTestPortfolioService(&fakePositions{}, snaps, nil, nil)

	history, changes, err := s.History(context.Background(), addrAMixed)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.InDelta(t, 5.0, changes.Change24h, 1e-9, "126000 vs the 120000 snapshot just past 24h")
	assert.InDelta(t, 14.5454, changes.Change7d, 0.001)
	assert.InDelta(t, 26.0, changes.Change30d, 1e-9)
}

type fakeMarket struct {
	tokens []domain.TokenPrice
	err    error
	limit  int
}

func (f *fakeMarket) TopTokens(_ context.Context, limit int) ([]domain.TokenPrice, error) {
	f.limit = limit
	return f.tokens, f.err
}

func TestMarketOverview(t *testing.T) {
	market := &fakeMarket{tokens: []domain.TokenPrice{
		{Symbol: "BTC", Change24h: -1.4},
		{Symbol: "AVAX", Change24h: 3.2},
	}}
	agg := NewAggregator(&fakePositions{}, &fakePrices{}, &fakeProtocols{}, 43114, testLogger())
	s := NewPortfolioService(agg, &memSnapshotStore{}, nil, market, nil, testLogger())

	protocols := map[string]*domain.ProtocolInfo{
		"Trader Joe": {Slug: "trader-joe", TVLChange7d: -2.1},
	}
	mc := s.MarketOverview(context.Background(), protocols)
	require.NotNil(t, mc)
	assert.Equal(t, 10, market.limit)
	assert.Equal(t, map[string]float64{"BTC": -1.4, "AVAX": 3.2}, mc.TopTokens24hChange)
	assert.Equal(t, map[string]float64{"Trader Joe": -2.1}, mc.ProtocolTVLChanges)
}

func TestMarketOverviewDegradesToProtocols(t *testing.T) {
	market := &fakeMarket{err: errors.New("provider down")}
	agg := NewAggregator(&fakePositions{}, &fakePrices{}, &fakeProtocols{}, 43114, testLogger())
	s := NewPortfolioService(agg, &memSnapshotStore{}, nil, market, nil, testLogger())

	protocols := map[string]*domain.ProtocolInfo{"GMX": {TVLChange7d: 1.8}}
	mc := s.MarketOverview(context.Background(), protocols)
	require.NotNil(t, mc)
	assert.Empty(t, mc.TopTokens24hChange)
	assert.Equal(t, map[string]float64{"GMX": 1.8}, mc.ProtocolTVLChanges)
}

func TestMarketOverviewNilWhenEmpty(t *testing.T) {
	agg := NewAggregator(&fakePositions{}, &fakePrices{}, &fakeProtocols{}, 43114, testLogger())
	s := NewPortfolioService(agg, &memSnapshotStore{}, nil, nil, nil, testLogger())

	assert.Nil(t, s.MarketOverview(context.Background(), nil))
}

func TestHistoryEmptyWallet(t *testing.T) {
	s := newTestPortfolioService(&fakePositions{}, &memSnapshotStore{}, nil, nil)

	history, changes, err := s.History(context.Background(), "0xnothing")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Zero(t, changes)
}
