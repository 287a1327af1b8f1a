package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/topchanges/internal/models"
)

const sampleHeader = "ISIN;Ticker;ISINNAVN ;New_ID;Fornavn;Etternavn;Investortype;DatoIdag;DatoIgaar;Kurs idag;Kurs igaar;Change;Ny;Rank"

func parseSample(t *testing.T, lines ...string) *Extract {
	t.Helper()
	ex, err := Parse(strings.NewReader(strings.Join(lines, "\n")+"\n"), "TopChanges_Nordea_Invest_DAG_240115.csv")
	require.NoError(t, err)
	return ex
}

func TestNormalizeBuildsDimensionsAndFacts(t *testing.T) {
	ex := parseSample(t,
		sampleHeader,
		"NO0001;EQNR;Equinor;I1;Ola;Nordmann;Privat;20240115;20240112;0;100;10;1.0;3",
		"NO0001;;Equinor;I2;;Fond AS;ORG;20240115;20240112;;100;-5;0;4",
		"NO0002;DNB;DNB Bank;I1;;;;240115;240112;210,5;0;2;;",
	)

	b, err := Normalize(ex, DefaultAliases)
	require.NoError(t, err)

	require.Len(t, b.Facts, 3)
	require.Len(t, b.Investors, 2)
	require.Len(t, b.Securities, 2)

	f := b.Facts[0]
	assert.Equal(t, "2024-01-15", f.DateToday)
	require.NotNil(t, f.DateYesterday)
	assert.Equal(t, "2024-01-12", *f.DateYesterday)
	require.NotNil(t, f.PriceYesterday)
	assert.Equal(t, 100.0, *f.PriceYesterday)
	require.NotNil(t, f.FlagNewSource)
	assert.Equal(t, int64(1), *f.FlagNewSource)
	assert.Equal(t, ex.Name, f.SourceFile)

	// A later row without names does not blank the first row's names.
	i1 := b.Investors[0]
	require.NotNil(t, i1.FirstName)
	assert.Equal(t, "Ola", *i1.FirstName)

	// Ticker is missing on the second NO0001 row but kept from the first.
	require.NotNil(t, b.Securities[0].Ticker)
	assert.Equal(t, "EQNR", *b.Securities[0].Ticker)

	assert.Equal(t, 100.0, b.LastPriceHints["NO0001"])
	assert.Equal(t, 210.5, b.LastPriceHints["NO0002"])
}

func TestNormalizeCollapsesDuplicateKeys(t *testing.T) {
	ex := parseSample(t,
		sampleHeader,
		"NO0001;;;I1;;;;20240115;;;100;10;;",
		"NO0002;;;I1;;;;20240115;;;50;1;;",
		"NO0001;;;I1;;;;20240115;;;101;20;;",
	)

	b, err := Normalize(ex, DefaultAliases)
	require.NoError(t, err)

	require.Len(t, b.Facts, 2)
	assert.Equal(t, "NO0001", b.Facts[0].ISIN)
	require.NotNil(t, b.Facts[0].ChangeQty)
	assert.Equal(t, 20.0, *b.Facts[0].ChangeQty, "last occurrence wins")
	assert.Equal(t, 1, b.CellWarnings[models.WarnDuplicateKey])
}

func TestNormalizeCoercesBadCells(t *testing.T) {
	ex := parseSample(t,
		sampleHeader,
		"NO0001;;;I1;;;;20240115;garbage;x;100;ten;;",
		"NO0001;;;;;;;20240115;;;100;1;;",
		"NO0001;;;I2;;;;nodate;;;100;1;;",
	)

	b, err := Normalize(ex, DefaultAliases)
	require.NoError(t, err)

	require.Len(t, b.Facts, 1)
	assert.Nil(t, b.Facts[0].DateYesterday)
	assert.Nil(t, b.Facts[0].PriceToday)
	assert.Nil(t, b.Facts[0].ChangeQty)
	assert.Equal(t, 2, b.CellWarnings[models.WarnUnparseableDate])
	assert.Equal(t, 2, b.CellWarnings[models.WarnUnparseableNumber])
	assert.Equal(t, 2, b.CellWarnings[models.WarnMissingKey])
}

func TestNormalizeMissingMandatoryColumn(t *testing.T) {
	ex := parseSample(t,
		"Ticker;New_ID;DatoIdag",
		"EQNR;I1;20240115",
	)

	_, err := Normalize(ex, DefaultAliases)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))

	var mc *MissingColumnsError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, []Field{FieldISIN}, mc.Fields)
}

func TestParseDecodesLatin1(t *testing.T) {
	// "Bjørn" in ISO-8859-1
	data := []byte("ISIN;New_ID;DatoIdag;Fornavn\nNO0001;I1;20240115;Bj\xf8rn\n")
	ex, err := Parse(strings.NewReader(string(data)), "latin1.csv")
	require.NoError(t, err)
	require.Len(t, ex.Rows, 1)
	assert.Equal(t, "Bjørn", ex.Rows[0][3])
}

func TestLoadAliasesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("price_yesterday: [\"Sluttkurs igaar\"]\n"), 0o644))

	aliases, err := LoadAliases(path)
	require.NoError(t, err)
	assert.Equal(t, "Sluttkurs igaar", aliases[FieldPriceYesterday][0])
	assert.Contains(t, aliases[FieldPriceYesterday], "Kurs igaar")
	assert.NotEqual(t, "Sluttkurs igaar", DefaultAliases[FieldPriceYesterday][0], "defaults are not modified")

	cols := aliases.Resolve([]string{"ISIN", "New_ID", "DatoIdag", "Sluttkurs igaar"})
	assert.Equal(t, 3, cols[FieldPriceYesterday])

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("no_such_field: [\"x\"]\n"), 0o644))
	_, err = LoadAliases(bad)
	assert.Error(t, err)
}

func TestLoadAliasesEmptyPath(t *testing.T) {
	aliases, err := LoadAliases("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAliases[FieldISIN], aliases[FieldISIN])
}
