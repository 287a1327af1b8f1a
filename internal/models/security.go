package models

// Security is the identity dimension keyed by ISIN.
// LastPrice is derived by the price backfill, never read from an extract.
type Security struct {
	ISIN              string   `json:"isin"`
	Ticker            *string  `json:"ticker"`
	ISINName          *string  `json:"isin_name"`
	PaperGroup        *string  `json:"paper_group"`
	IssuerOrgnr       *string  `json:"issuer_orgnr"`
	IssuerName        *string  `json:"issuer_name"`
	RegisteredCountry *string  `json:"registered_country"`
	Market            *string  `json:"market"`
	Sector            *string  `json:"sector"`
	GICSSector        *string  `json:"gics_sector"`
	AskPaper          *string  `json:"ask_paper"`
	IssuedShares      *float64 `json:"issued_shares"`
	LastPrice         *float64 `json:"last_price"`
}

// Merge folds a later observation of the same security into s.
// A non-nil field in newer overwrites; a nil field never erases.
func (s *Security) Merge(newer Security) {
	s.Ticker = coalesce(newer.Ticker, s.Ticker)
	s.ISINName = coalesce(newer.ISINName, s.ISINName)
	s.PaperGroup = coalesce(newer.PaperGroup, s.PaperGroup)
	s.IssuerOrgnr = coalesce(newer.IssuerOrgnr, s.IssuerOrgnr)
	s.IssuerName = coalesce(newer.IssuerName, s.IssuerName)
	s.RegisteredCountry = coalesce(newer.RegisteredCountry, s.RegisteredCountry)
	s.Market = coalesce(newer.Market, s.Market)
	s.Sector = coalesce(newer.Sector, s.Sector)
	s.GICSSector = coalesce(newer.GICSSector, s.GICSSector)
	s.AskPaper = coalesce(newer.AskPaper, s.AskPaper)
	s.IssuedShares = coalesce(newer.IssuedShares, s.IssuedShares)
	s.LastPrice = coalesce(newer.LastPrice, s.LastPrice)
}

// SecuritySuggestion is a search hit for the security picker
type SecuritySuggestion struct {
	ISIN     string `json:"isin"`
	Ticker   string `json:"ticker"`
	ISINName string `json:"isin_name"`
}

func coalesce[T any](newer, older *T) *T {
	if newer != nil {
		return newer
	}
	return older
}
