package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
)

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }
func flag(n int64) *int64    { return &n }

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"), 5000)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Conn
}

func fact(isin, investor, date string, qty float64, priceYesterday *float64) models.PositionChange {
	return models.PositionChange{
		ISIN:           isin,
		InvestorID:     investor,
		DateToday:      date,
		ChangeQty:      num(qty),
		PriceYesterday: priceYesterday,
		SourceFile:     "f1.csv",
	}
}

func TestUpsertInvestorsNeverErases(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInvestorRepository(db)

	require.NoError(t, repo.UpsertInvestors(ctx, db, []models.Investor{
		{InvestorID: "I1", FirstName: str("Kari"), LastName: str("Nordmann"), CountryCode: str("NO")},
	}))
	require.NoError(t, repo.UpsertInvestors(ctx, db, []models.Investor{
		{InvestorID: "I1", InvestorType: str("Privat"), CountryCode: nil, LastName: str("Hansen")},
	}))

	inv, err := repo.GetByID(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, "Kari", *inv.FirstName)
	assert.Equal(t, "Hansen", *inv.LastName)
	assert.Equal(t, "NO", *inv.CountryCode)
	assert.Equal(t, "Privat", *inv.InvestorType)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvestorNotFound)
}

func TestUpsertSecuritiesKeepsLastPrice(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSecurityRepository(db)

	require.NoError(t, repo.UpsertSecurities(ctx, db, []models.Security{
		{ISIN: "NO0001", Ticker: str("EQNR"), ISINName: str("Equinor")},
	}))
	require.NoError(t, repo.UpdateLastPriceHints(ctx, db, map[string]float64{"NO0001": 250}))
	require.NoError(t, repo.UpsertSecurities(ctx, db, []models.Security{
		{ISIN: "NO0001", Sector: str("Energy")},
	}))

	s, err := repo.GetByISIN(ctx, "NO0001")
	require.NoError(t, err)
	assert.Equal(t, "EQNR", *s.Ticker)
	assert.Equal(t, "Equinor", *s.ISINName)
	assert.Equal(t, "Energy", *s.Sector)
	require.NotNil(t, s.LastPrice)
	assert.Equal(t, 250.0, *s.LastPrice)

	_, err = repo.GetByISIN(ctx, "XX")
	assert.ErrorIs(t, err, ErrSecurityNotFound)
}

func TestSecuritySearchPrefersPrefix(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSecurityRepository(db)

	require.NoError(t, repo.UpsertSecurities(ctx, db, []models.Security{
		{ISIN: "NO0002", Ticker: str("XEQ"), ISINName: str("Other Equity")},
		{ISIN: "NO0001", Ticker: str("EQNR"), ISINName: str("Equinor")},
	}))

	hits, err := repo.Search(ctx, "eq", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "NO0001", hits[0].ISIN)

	hits, err = repo.Search(ctx, "e", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReplacePositionsReplacesWholeRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewPositionRepository(db)

	first := fact("NO0001", "I1", "2024-01-05", 10, num(100))
	first.Rank = flag(3)
	require.NoError(t, repo.ReplacePositions(ctx, db, []models.PositionChange{first}))

	second := fact("NO0001", "I1", "2024-01-05", -4, nil)
	second.SourceFile = "f2.csv"
	require.NoError(t, repo.ReplacePositions(ctx, db, []models.PositionChange{second}))

	got, err := repo.GetByKey(ctx, first.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, -4.0, *got.ChangeQty)
	assert.Nil(t, got.PriceYesterday)
	assert.Nil(t, got.Rank)
	assert.Equal(t, "f2.csv", got.SourceFile)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedgerMarkIngested(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewLedgerRepository(db)

	require.NoError(t, repo.MarkIngested(ctx, db, models.IngestedFile{Filename: "a.csv", MTime: 1.5, IngestedAt: "2024-01-01T00:00:00Z"}))
	require.NoError(t, repo.MarkIngested(ctx, db, models.IngestedFile{Filename: "a.csv", MTime: 2.5, IngestedAt: "2024-01-02T00:00:00Z", ContentHash: str("abc")}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2.5, all["a.csv"].MTime)
	assert.Equal(t, "abc", *all["a.csv"].ContentHash)

	missing, err := repo.Get(ctx, db, "b.csv")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTradePriceFallsBackToNextDay(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	positions := NewPositionRepository(db)
	prices := NewPriceRepository(db)

	require.NoError(t, positions.ReplacePositions(ctx, db, []models.PositionChange{
		fact("NO0001", "I1", "2024-01-05", 10, num(0)),
		fact("NO0001", "I2", "2024-01-06", 1, num(105)),
		fact("NO0002", "I1", "2024-01-05", -3, num(20)),
		fact("NO0003", "I1", "2024-01-05", 7, nil),
	}))

	rows, err := prices.Trades(ctx, TradeFilter{From: "2024-01-05", To: "2024-01-05"})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byISIN := make(map[string]TradeRow)
	for _, r := range rows {
		byISIN[r.ISIN] = r
	}
	require.NotNil(t, byISIN["NO0001"].TradePrice)
	assert.Equal(t, 105.0, *byISIN["NO0001"].TradePrice)
	assert.Equal(t, 20.0, *byISIN["NO0002"].TradePrice)
	assert.Nil(t, byISIN["NO0003"].TradePrice)

	p, err := prices.ResolveTradePrice(ctx, "NO0001", "I1", "2024-01-05")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 105.0, *p)

	p, err = prices.ResolveTradePrice(ctx, "NO0003", "I1", "2024-01-05")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = prices.ResolveTradePrice(ctx, "NO0003", "I2", "2024-01-05")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestResolveTradePriceMatchesTrades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	positions := NewPositionRepository(db)
	prices := NewPriceRepository(db)

	require.NoError(t, positions.ReplacePositions(ctx, db, []models.PositionChange{
		fact("X", "I1", "2024-01-10", 1, num(100)),
		fact("X", "I2", "2024-01-10", 1, num(102)),
		fact("X", "I3", "2024-01-10", 1, num(0)),
		fact("X", "I1", "2024-01-11", 1, num(105)),
	}))

	rows, err := prices.Trades(ctx, TradeFilter{From: "2024-01-10", To: "2024-01-10"})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	want := map[string]float64{"I1": 100, "I2": 102, "I3": 105}
	for _, r := range rows {
		require.NotNil(t, r.TradePrice)
		assert.Equal(t, want[r.InvestorID], *r.TradePrice, r.InvestorID)

		p, err := prices.ResolveTradePrice(ctx, "X", r.InvestorID, "2024-01-10")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, *r.TradePrice, *p, r.InvestorID)
	}
}

func TestTradesFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	investors := NewInvestorRepository(db)
	positions := NewPositionRepository(db)
	prices := NewPriceRepository(db)

	require.NoError(t, investors.UpsertInvestors(ctx, db, []models.Investor{
		{InvestorID: "I1", InvestorType: str("Privat"), CountryCode: str("NO")},
		{InvestorID: "I2", InvestorType: str("Fond"), CountryCode: str("SE")},
	}))
	require.NoError(t, positions.ReplacePositions(ctx, db, []models.PositionChange{
		fact("NO0001", "I1", "2024-01-05", 10, num(100)),
		fact("NO0001", "I2", "2024-01-05", 5, num(100)),
		fact("NO0002", "I1", "2024-01-09", 5, num(50)),
	}))

	tests := []struct {
		name   string
		filter TradeFilter
		want   int
	}{
		{"window", TradeFilter{From: "2024-01-01", To: "2024-01-31"}, 3},
		{"narrow window", TradeFilter{From: "2024-01-06", To: "2024-01-31"}, 1},
		{"isin", TradeFilter{From: "2024-01-01", To: "2024-01-31", ISINs: []string{"NO0001"}}, 2},
		{"investor", TradeFilter{From: "2024-01-01", To: "2024-01-31", InvestorIDs: []string{"I2"}}, 1},
		{"investor type", TradeFilter{From: "2024-01-01", To: "2024-01-31", InvestorType: "Privat"}, 2},
		{"country", TradeFilter{From: "2024-01-01", To: "2024-01-31", Countries: []string{"SE", "DK"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := prices.Trades(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestBackfillLastPrice(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	securities := NewSecurityRepository(db)
	positions := NewPositionRepository(db)
	prices := NewPriceRepository(db)

	require.NoError(t, securities.UpsertSecurities(ctx, db, []models.Security{
		{ISIN: "NO0001"}, {ISIN: "NO0002"}, {ISIN: "NO0003"},
	}))
	require.NoError(t, securities.UpdateLastPriceHints(ctx, db, map[string]float64{"NO0003": 9}))

	today := func(isin, investor, date string, pt, py *float64) models.PositionChange {
		p := fact(isin, investor, date, 1, py)
		p.PriceToday = pt
		return p
	}
	require.NoError(t, positions.ReplacePositions(ctx, db, []models.PositionChange{
		today("NO0001", "I1", "2024-01-05", num(100), nil),
		today("NO0001", "I1", "2024-01-06", num(0), num(0)),
		today("NO0001", "I1", "2024-01-07", nil, nil),
		// latest priced day has two rows: the larger effective price wins
		today("NO0002", "I1", "2024-01-08", nil, num(40)),
		today("NO0002", "I2", "2024-01-08", num(42), num(1)),
		today("NO0002", "I1", "2024-01-02", num(99), nil),
		today("NO0003", "I1", "2024-01-08", num(0), nil),
	}))

	_, err := prices.BackfillLastPrice(ctx, db, "")
	require.NoError(t, err)

	last, err := securities.LastPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, last["NO0001"])
	assert.Equal(t, 42.0, last["NO0002"])
	_, ok := last["NO0003"]
	assert.False(t, ok, "a security with no positive price has no last price")

	_, err = prices.BackfillLastPrice(ctx, db, "2024-01-06")
	require.NoError(t, err)
	last, err = securities.LastPrices(ctx)
	require.NoError(t, err)
	_, ok = last["NO0001"]
	assert.False(t, ok)
	assert.Equal(t, 42.0, last["NO0002"])
}

func TestInvestorMatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInvestorRepository(db)

	require.NoError(t, repo.UpsertInvestors(ctx, db, []models.Investor{
		{InvestorID: "I1", FirstName: str("Kari"), LastName: str("Nordmann")},
		{InvestorID: "FOLKETRYGD", LastName: str("Folketrygdfondet")},
	}))

	tests := []struct {
		pattern string
		want    []string
	}{
		{"nordmann kari", []string{"I1"}},
		{"Kari Nord", []string{"I1"}},
		{"folketrygd", []string{"FOLKETRYGD"}},
		{"nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			matches, err := repo.Match(ctx, tt.pattern, 0)
			require.NoError(t, err)
			var ids []string
			for _, m := range matches {
				ids = append(ids, m.InvestorID)
				assert.Equal(t, tt.pattern, m.MatchedPattern)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
