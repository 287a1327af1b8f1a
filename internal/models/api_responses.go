package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ActivityRequest carries the date range shared by activity endpoints
type ActivityRequest struct {
	From FlexibleDate `form:"from" binding:"required"`
	To   FlexibleDate `form:"to" binding:"required"`
}

// ActivityResponse lists per-counterparty summaries for one investor or security
type ActivityResponse struct {
	Subject  string            `json:"subject"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Rows     []ActivitySummary `json:"rows"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

// TransactionsRequest filters resolved trades
type TransactionsRequest struct {
	ISIN       string       `form:"isin"`
	InvestorID string       `form:"investor_id"`
	From       FlexibleDate `form:"from" binding:"required"`
	To         FlexibleDate `form:"to" binding:"required"`
}

// TransactionsResponse lists resolved trades
type TransactionsResponse struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Trades   []Trade   `json:"trades"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// BestInvestorsRequest configures the profit ranking
type BestInvestorsRequest struct {
	From         FlexibleDate `form:"from" binding:"required"`
	To           FlexibleDate `form:"to" binding:"required"`
	InvestorType string       `form:"investor_type"`
	Countries    []string     `form:"country"`
	ISINs        []string     `form:"isin"`
	MinTrades    int          `form:"min_trades"`
	MinGross     float64      `form:"min_gross"`
	Limit        int          `form:"limit"`
}

// BestInvestorsResponse lists investors ranked by profit
type BestInvestorsResponse struct {
	From      string                `json:"from"`
	To        string                `json:"to"`
	Investors []InvestorPerformance `json:"investors"`
	Warnings  []Warning             `json:"warnings,omitempty"`
}

// WatchlistActivityResponse is per-security activity for the investors a
// watchlist resolves to
type WatchlistActivityResponse struct {
	Name     string            `json:"name"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Matches  []InvestorMatch   `json:"matches"`
	Rows     []ActivitySummary `json:"rows"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

// TradePriceResponse is the resolved trade price of one position change
type TradePriceResponse struct {
	ISIN       string    `json:"isin"`
	InvestorID string    `json:"investor_id"`
	Date       string    `json:"date"`
	TradePrice *float64  `json:"trade_price"`
	LastPrice  *float64  `json:"last_price"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// LedgerResponse lists ingested files
type LedgerResponse struct {
	Files []IngestedFile `json:"files"`
}

// SecuritySearchResponse lists security picker hits
type SecuritySearchResponse struct {
	Query   string               `json:"query"`
	Results []SecuritySuggestion `json:"results"`
}

// InvestorSearchResponse lists investor picker hits
type InvestorSearchResponse struct {
	Query   string          `json:"query"`
	Results []InvestorMatch `json:"results"`
}

// StoreSummary describes the store the API serves
type StoreSummary struct {
	Path       string `json:"path"`
	Investors  int    `json:"investors"`
	Securities int    `json:"securities"`
	Facts      int    `json:"facts"`
	FirstDate  string `json:"first_date"`
	LastDate   string `json:"last_date"`
}
