package models

// PositionChange is one observed day-over-day change in an investor's holding
// of a security. (ISIN, InvestorID, DateToday) is the primary key; dates are
// ISO YYYY-MM-DD.
type PositionChange struct {
	ISIN             string   `json:"isin"`
	InvestorID       string   `json:"investor_id"`
	DateToday        string   `json:"date_today"`
	DateYesterday    *string  `json:"date_yesterday"`
	HoldingToday     *float64 `json:"holding_today"`
	HoldingYesterday *float64 `json:"holding_yesterday"`
	PriceToday       *float64 `json:"price_today"`
	PriceYesterday   *float64 `json:"price_yesterday"`
	ChangeQty        *float64 `json:"change_qty"`
	AbsChangeQty     *float64 `json:"abs_change_qty"`
	ChangePercent    *float64 `json:"change_percent"`
	FlagNewSource    *int64   `json:"flag_new_source"`
	FlagExitSource   *int64   `json:"flag_exit_source"`
	Rank             *int64   `json:"rank"`
	SourceFile       string   `json:"source_file"`
}

// PositionKey identifies a fact row
type PositionKey struct {
	ISIN       string
	InvestorID string
	DateToday  string
}

// Key returns the fact's primary key
func (p *PositionChange) Key() PositionKey {
	return PositionKey{ISIN: p.ISIN, InvestorID: p.InvestorID, DateToday: p.DateToday}
}

// IngestedFile is a ledger entry. MTime is the file's modification time in
// float seconds at ingestion.
type IngestedFile struct {
	Filename    string  `json:"filename"`
	MTime       float64 `json:"mtime"`
	IngestedAt  string  `json:"ingested_at"`
	ContentHash *string `json:"content_hash,omitempty"`
}
