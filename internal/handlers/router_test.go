package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
	"github.com/epeers/topchanges/internal/services"
)

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }

func seedStore(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, path, 5000)
	require.NoError(t, err)
	defer db.Close()

	conn := db.Conn
	require.NoError(t, repository.NewInvestorRepository(conn).UpsertInvestors(ctx, conn, []models.Investor{
		{InvestorID: "I1", InvestorType: str("Privat"), FirstName: str("Ola"), LastName: str("Nordmann"), CountryCode: str("NO")},
		{InvestorID: "I2", InvestorType: str("ORG"), LastName: str("Fond AS"), CountryCode: str("SE")},
	}))
	require.NoError(t, repository.NewSecurityRepository(conn).UpsertSecurities(ctx, conn, []models.Security{
		{ISIN: "NO0001", Ticker: str("EQNR"), ISINName: str("Equinor")},
	}))
	require.NoError(t, repository.NewPositionRepository(conn).ReplacePositions(ctx, conn, []models.PositionChange{
		{ISIN: "NO0001", InvestorID: "I1", DateToday: "2024-01-15", ChangeQty: num(10), PriceYesterday: num(0), SourceFile: "a.csv"},
		{ISIN: "NO0001", InvestorID: "I2", DateToday: "2024-01-16", ChangeQty: num(-5), PriceYesterday: num(105), SourceFile: "b.csv"},
	}))
	require.NoError(t, repository.NewLedgerRepository(conn).MarkIngested(ctx, conn, models.IngestedFile{
		Filename: "a.csv", MTime: 1, IngestedAt: "2024-01-16T00:00:00Z",
	}))
	_, err = repository.NewPriceRepository(conn).BackfillLastPrice(ctx, conn, "")
	require.NoError(t, err)
	require.NoError(t, db.Checkpoint(ctx))
}

// newTestRouter serves a seeded store opened read-only, the way serve does
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	seedStore(t, path)

	listDir := filepath.Join(dir, "lists")
	require.NoError(t, os.Mkdir(listDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(listDir, "Favoritter.csv"), []byte("Eier\nNordmann\nUkjent\n"), 0o644))

	db, err := database.OpenReadOnly(ctx, path, 5000)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	invRepo := repository.NewInvestorRepository(db.Conn)
	secRepo := repository.NewSecurityRepository(db.Conn)
	posRepo := repository.NewPositionRepository(db.Conn)
	ledgerRepo := repository.NewLedgerRepository(db.Conn)
	priceRepo := repository.NewPriceRepository(db.Conn)

	pricingSvc := services.NewPricingService(nil, priceRepo, secRepo, path)
	activitySvc := services.NewActivityService(priceRepo, secRepo, invRepo, pricingSvc)
	watchlistSvc := services.NewWatchlistService(listDir, path, invRepo, activitySvc, nil)
	adminSvc := services.NewAdminService(path, invRepo, secRepo, posRepo, ledgerRepo)

	return NewRouter(
		NewActivityHandler(activitySvc),
		NewWatchlistHandler(watchlistSvc),
		NewAdminHandler(adminSvc, pricingSvc),
	)
}

func get(t *testing.T, router *gin.Engine, url string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestRouterStatuses(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"health", "/health", http.StatusOK},
		{"security activity", "/securities/NO0001/activity?from=2024-01-01&to=2024-01-31", http.StatusOK},
		{"unknown security", "/securities/XX9999/activity?from=2024-01-01&to=2024-01-31", http.StatusNotFound},
		{"unknown investor", "/investors/nobody/activity?from=2024-01-01&to=2024-01-31", http.StatusNotFound},
		{"inverted window", "/investors/I1/activity?from=2024-02-01&to=2024-01-01", http.StatusBadRequest},
		{"malformed date", "/securities/NO0001/activity?from=01.01.2024&to=2024-01-31", http.StatusBadRequest},
		{"transactions without subject", "/transactions?from=2024-01-01&to=2024-01-31", http.StatusBadRequest},
		{"unknown investor type", "/best-investors?from=2024-01-01&to=2024-01-31&investor_type=robot", http.StatusBadRequest},
		{"bad limit", "/securities?q=EQ&limit=-3", http.StatusBadRequest},
		{"unknown watchlist", "/watchlists/missing/activity?from=2024-01-01&to=2024-01-31", http.StatusNotFound},
		{"trade price needs a date", "/admin/prices/NO0001?investor=I1", http.StatusBadRequest},
		{"trade price needs an investor", "/admin/prices/NO0001?date=2024-01-15", http.StatusBadRequest},
		{"trade price of a missing fact", "/admin/prices/NO0001?investor=I2&date=2024-01-15", http.StatusNotFound},
		{"unknown route", "/holdings", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, router, tt.url, nil))
		})
	}
}

func TestRouterRejectsWrites(t *testing.T) {
	router := newTestRouter(t)
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, "/securities", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
	}
}

func TestSecurityActivityResponse(t *testing.T) {
	router := newTestRouter(t)

	var resp models.ActivityResponse
	require.Equal(t, http.StatusOK, get(t, router, "/securities/NO0001/activity?from=2024-01-01&to=2024-01-31", &resp))
	assert.Equal(t, "NO0001", resp.Subject)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "I1", resp.Rows[0].Key)
	assert.Equal(t, "1050", resp.Rows[0].BuyAmount.String())
}

func TestBestInvestorsResponse(t *testing.T) {
	router := newTestRouter(t)

	var resp models.BestInvestorsResponse
	require.Equal(t, http.StatusOK, get(t, router, "/best-investors?from=2024-01-01&to=2024-01-31&country=no", &resp))
	require.Len(t, resp.Investors, 1)
	assert.Equal(t, "I1", resp.Investors[0].InvestorID)
	assert.Equal(t, "50", resp.Investors[0].Profit.String())
}

func TestWatchlistEndpoints(t *testing.T) {
	router := newTestRouter(t)

	var lists models.WatchlistsResponse
	require.Equal(t, http.StatusOK, get(t, router, "/watchlists", &lists))
	require.Len(t, lists.Watchlists, 1)
	assert.Equal(t, "Favoritter", lists.Watchlists[0].Name)

	var resp models.WatchlistActivityResponse
	require.Equal(t, http.StatusOK, get(t, router, "/watchlists/favoritter/activity?from=2024-01-01&to=2024-01-31", &resp))
	require.Len(t, resp.Matches, 1)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, models.WarnPatternNoMatch, resp.Warnings[0].Code)
}

func TestAdminEndpoints(t *testing.T) {
	router := newTestRouter(t)

	var summary models.StoreSummary
	require.Equal(t, http.StatusOK, get(t, router, "/admin/store", &summary))
	assert.Equal(t, 2, summary.Investors)
	assert.Equal(t, 1, summary.Securities)
	assert.Equal(t, 2, summary.Facts)
	assert.Equal(t, "2024-01-15", summary.FirstDate)
	assert.Equal(t, "2024-01-16", summary.LastDate)

	var ledger models.LedgerResponse
	require.Equal(t, http.StatusOK, get(t, router, "/admin/ledger?limit=10", &ledger))
	require.Len(t, ledger.Files, 1)

	var price models.TradePriceResponse
	require.Equal(t, http.StatusOK, get(t, router, "/admin/prices/NO0001?investor=I1&date=2024-01-15", &price))
	assert.Equal(t, "I1", price.InvestorID)
	require.NotNil(t, price.TradePrice)
	assert.Equal(t, 105.0, *price.TradePrice)
}
