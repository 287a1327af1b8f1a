package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
)

const (
	testBusyTimeout = 5000
	testPrefix      = "TopChanges_Nordea_Invest_DAG_"
	extractHeader   = "ISIN;Ticker;ISINNAVN ;New_ID;Fornavn;Etternavn;Investortype;DatoIdag;DatoIgaar;Kurs idag;Kurs igaar;Change;Ny;Rank"
)

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }

func newStore(t *testing.T, path string) *database.DB {
	t.Helper()
	db, err := database.New(context.Background(), path, testBusyTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// writeExtract writes an extract file into dir and returns its name
func writeExtract(t *testing.T, dir, yymmdd string, rows ...string) string {
	t.Helper()
	name := testPrefix + yymmdd + ".csv"
	content := extractHeader + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return name
}

type fixture struct {
	db         *database.DB
	investors  *repository.InvestorRepository
	securities *repository.SecurityRepository
	positions  *repository.PositionRepository
	prices     *repository.PriceRepository
	ledger     *repository.LedgerRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newStore(t, filepath.Join(t.TempDir(), "store.db"))
	return &fixture{
		db:         db,
		investors:  repository.NewInvestorRepository(db.Conn),
		securities: repository.NewSecurityRepository(db.Conn),
		positions:  repository.NewPositionRepository(db.Conn),
		prices:     repository.NewPriceRepository(db.Conn),
		ledger:     repository.NewLedgerRepository(db.Conn),
	}
}

func fact(isin, investor, date string, qty float64, priceYesterday *float64) models.PositionChange {
	return models.PositionChange{
		ISIN:           isin,
		InvestorID:     investor,
		DateToday:      date,
		ChangeQty:      num(qty),
		PriceYesterday: priceYesterday,
		SourceFile:     "seed.csv",
	}
}

// seedTrading loads a small market:
//
//	I1 (Privat, NO) buys 10 NO0001 on 2024-01-15 with no price that day;
//	I2 (ORG, SE) sells 5 NO0001 on 2024-01-16 at 105;
//	I1 buys 2 NO0002 on 2024-01-16 with no price on that day or the next.
//
// NO0001 last trades at 110.
func (f *fixture) seedTrading(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn := f.db.Conn

	require.NoError(t, f.investors.UpsertInvestors(ctx, conn, []models.Investor{
		{InvestorID: "I1", InvestorType: str("Privat"), FirstName: str("Ola"), LastName: str("Nordmann"), CountryCode: str("NO")},
		{InvestorID: "I2", InvestorType: str("ORG"), LastName: str("Fond AS"), CountryCode: str("SE")},
	}))
	require.NoError(t, f.securities.UpsertSecurities(ctx, conn, []models.Security{
		{ISIN: "NO0001", Ticker: str("EQNR"), ISINName: str("Equinor")},
		{ISIN: "NO0002", Ticker: str("DNB"), ISINName: str("DNB Bank")},
	}))
	require.NoError(t, f.positions.ReplacePositions(ctx, conn, []models.PositionChange{
		fact("NO0001", "I1", "2024-01-15", 10, num(0)),
		fact("NO0001", "I2", "2024-01-16", -5, num(105)),
		fact("NO0002", "I1", "2024-01-16", 2, nil),
	}))
	require.NoError(t, f.securities.UpdateLastPriceHints(ctx, conn, map[string]float64{"NO0001": 110}))
}
