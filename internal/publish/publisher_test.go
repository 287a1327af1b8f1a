package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
)

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }

// Publishing needs a disposable Postgres database in PG_URL
func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	url := os.Getenv("PG_URL")
	if url == "" {
		t.Skip("PG_URL not set")
	}
	p, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestPublishUpserts(t *testing.T) {
	p := newTestPublisher(t)
	ctx := context.Background()

	store, err := database.New(ctx, filepath.Join(t.TempDir(), "store.db"), 5000)
	require.NoError(t, err)
	defer store.Close()
	conn := store.Conn

	require.NoError(t, repository.NewInvestorRepository(conn).UpsertInvestors(ctx, conn, []models.Investor{
		{InvestorID: "PUBTEST-I1", LastName: str("Nordmann")},
	}))
	require.NoError(t, repository.NewSecurityRepository(conn).UpsertSecurities(ctx, conn, []models.Security{
		{ISIN: "PUBTEST0001", Ticker: str("EQNR")},
	}))
	require.NoError(t, repository.NewPositionRepository(conn).ReplacePositions(ctx, conn, []models.PositionChange{
		{ISIN: "PUBTEST0001", InvestorID: "PUBTEST-I1", DateToday: "2024-01-15", ChangeQty: num(10), PriceYesterday: num(100), SourceFile: "pub.csv"},
	}))

	res, err := p.Publish(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Investors)
	assert.Equal(t, 1, res.Securities)
	assert.Equal(t, 1, res.Facts)

	// A second publish of changed rows updates in place.
	require.NoError(t, repository.NewPositionRepository(conn).ReplacePositions(ctx, conn, []models.PositionChange{
		{ISIN: "PUBTEST0001", InvestorID: "PUBTEST-I1", DateToday: "2024-01-15", ChangeQty: num(12), PriceYesterday: num(100), SourceFile: "pub.csv"},
	}))
	_, err = p.Publish(ctx, store)
	require.NoError(t, err)

	var qty float64
	require.NoError(t, p.pool.QueryRow(ctx,
		`SELECT change_qty FROM position_change WHERE isin = $1 AND investor_id = $2`,
		"PUBTEST0001", "PUBTEST-I1").Scan(&qty))
	assert.Equal(t, 12.0, qty)

	_, err = p.pool.Exec(ctx, `DELETE FROM position_change WHERE isin = 'PUBTEST0001'`)
	require.NoError(t, err)
}
