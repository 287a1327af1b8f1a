package models

// WarningCode categorizes warnings by subsystem.
// W1xxx = extract cells, W2xxx = pricing, W3xxx = watchlists.
type WarningCode string

const (
	WarnUnparseableDate   WarningCode = "W1001" // date cell coerced to null
	WarnUnparseableNumber WarningCode = "W1002" // numeric cell coerced to null
	WarnUnparseableFlag   WarningCode = "W1003" // flag/rank cell coerced to null
	WarnMissingKey        WarningCode = "W1004" // row dropped: isin, investor id or date missing
	WarnDuplicateKey      WarningCode = "W1005" // row collapsed into a later duplicate key in the same file
	WarnNoTradePrice      WarningCode = "W2001" // observation excluded from amounts: no positive trade price
	WarnPatternNoMatch    WarningCode = "W3001" // watchlist pattern matched no investor
)

// Warning represents a non-fatal issue encountered during processing.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
