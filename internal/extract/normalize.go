package extract

import (
	"strings"

	"github.com/epeers/topchanges/internal/models"
)

// Batch is an extract mapped onto the canonical model, ready to load.
type Batch struct {
	Source     string
	Investors  []models.Investor
	Securities []models.Security
	Facts      []models.PositionChange

	// LastPriceHints is this file's best guess at each security's price:
	// the largest positive price today, else the largest positive price
	// yesterday.
	LastPriceHints map[string]float64

	Rows         int
	CellWarnings map[models.WarningCode]int
}

type row struct {
	cols   Columns
	record []string
	batch  *Batch
}

func (r row) raw(f Field) (string, bool) {
	i, ok := r.cols[f]
	if !ok || i >= len(r.record) {
		return "", false
	}
	return r.record[i], true
}

func (r row) text(f Field) *string {
	s, ok := r.raw(f)
	if !ok {
		return nil
	}
	return ParseText(s)
}

func (r row) number(f Field) *float64 {
	s, ok := r.raw(f)
	if !ok {
		return nil
	}
	v := ParseNumber(s)
	if v == nil && !blank(strings.TrimSpace(s)) {
		r.batch.CellWarnings[models.WarnUnparseableNumber]++
	}
	return v
}

func (r row) date(f Field) *string {
	s, ok := r.raw(f)
	if !ok {
		return nil
	}
	v := ParseDate(s)
	if v == nil && !blank(strings.TrimSpace(s)) {
		r.batch.CellWarnings[models.WarnUnparseableDate]++
	}
	return v
}

func (r row) flag(f Field) *int64 {
	s, ok := r.raw(f)
	if !ok {
		return nil
	}
	v := ParseFlag(s)
	if v == nil && !blank(strings.TrimSpace(s)) {
		r.batch.CellWarnings[models.WarnUnparseableFlag]++
	}
	return v
}

// Normalize resolves the extract's columns and builds dimension and fact
// rows. Only a missing mandatory column is an error; malformed cells become
// nil and are counted in CellWarnings.
//
// Dimension rows sharing a key are merged in file order. Fact rows sharing
// (isin, investor_id, date_today) collapse to the last occurrence, kept at
// the position of the first.
func Normalize(ex *Extract, aliases Aliases) (*Batch, error) {
	cols := aliases.Resolve(ex.Header)
	if missing := cols.Missing(); len(missing) > 0 {
		return nil, &MissingColumnsError{File: ex.Name, Fields: missing}
	}

	b := &Batch{
		Source:         ex.Name,
		LastPriceHints: make(map[string]float64),
		Rows:           len(ex.Rows),
		CellWarnings:   make(map[models.WarningCode]int),
	}

	investorIdx := make(map[string]int)
	securityIdx := make(map[string]int)
	factIdx := make(map[models.PositionKey]int)
	maxToday := make(map[string]float64)
	maxYesterday := make(map[string]float64)

	for _, record := range ex.Rows {
		r := row{cols: cols, record: record, batch: b}

		isin := r.text(FieldISIN)
		investorID := r.text(FieldInvestorID)

		if investorID != nil {
			inv := models.Investor{
				InvestorID:   *investorID,
				InvestorType: r.text(FieldInvestorType),
				FirstName:    r.text(FieldFirstName),
				LastName:     r.text(FieldLastName),
				CountryCode:  r.text(FieldCountryCode),
				RawID:        r.text(FieldRawID),
			}
			if i, seen := investorIdx[inv.InvestorID]; seen {
				b.Investors[i].Merge(inv)
			} else {
				investorIdx[inv.InvestorID] = len(b.Investors)
				b.Investors = append(b.Investors, inv)
			}
		}

		priceToday := r.number(FieldPriceToday)
		priceYesterday := r.number(FieldPriceYesterday)

		if isin != nil {
			sec := models.Security{
				ISIN:              *isin,
				Ticker:            r.text(FieldTicker),
				ISINName:          r.text(FieldISINName),
				PaperGroup:        r.text(FieldPaperGroup),
				IssuerOrgnr:       r.text(FieldIssuerOrgnr),
				IssuerName:        r.text(FieldIssuerName),
				RegisteredCountry: r.text(FieldRegisteredCountry),
				Market:            r.text(FieldMarket),
				Sector:            r.text(FieldSector),
				GICSSector:        r.text(FieldGICSSector),
				AskPaper:          r.text(FieldAskPaper),
				IssuedShares:      r.number(FieldIssuedShares),
			}
			if i, seen := securityIdx[sec.ISIN]; seen {
				b.Securities[i].Merge(sec)
			} else {
				securityIdx[sec.ISIN] = len(b.Securities)
				b.Securities = append(b.Securities, sec)
			}

			trackMax(maxToday, *isin, priceToday)
			trackMax(maxYesterday, *isin, priceYesterday)
		}

		dateToday := r.date(FieldDateToday)
		if isin == nil || investorID == nil || dateToday == nil {
			b.CellWarnings[models.WarnMissingKey]++
			continue
		}

		fact := models.PositionChange{
			ISIN:             *isin,
			InvestorID:       *investorID,
			DateToday:        *dateToday,
			DateYesterday:    r.date(FieldDateYesterday),
			HoldingToday:     r.number(FieldHoldingToday),
			HoldingYesterday: r.number(FieldHoldingYesterday),
			PriceToday:       priceToday,
			PriceYesterday:   priceYesterday,
			ChangeQty:        r.number(FieldChangeQty),
			AbsChangeQty:     r.number(FieldAbsChangeQty),
			ChangePercent:    r.number(FieldChangePercent),
			FlagNewSource:    r.flag(FieldFlagNew),
			FlagExitSource:   r.flag(FieldFlagExit),
			Rank:             r.flag(FieldRank),
			SourceFile:       ex.Name,
		}
		if i, seen := factIdx[fact.Key()]; seen {
			b.Facts[i] = fact
			b.CellWarnings[models.WarnDuplicateKey]++
		} else {
			factIdx[fact.Key()] = len(b.Facts)
			b.Facts = append(b.Facts, fact)
		}
	}

	for isin, p := range maxYesterday {
		b.LastPriceHints[isin] = p
	}
	for isin, p := range maxToday {
		b.LastPriceHints[isin] = p
	}

	return b, nil
}

func trackMax(m map[string]float64, isin string, price *float64) {
	if price == nil || *price <= 0 {
		return
	}
	if cur, ok := m[isin]; !ok || *price > cur {
		m[isin] = *price
	}
}
