package models

import "github.com/shopspring/decimal"

// Trade is a position change valued at its resolved trade price.
// Amount is signed: a sale (negative Quantity) gives a negative amount.
type Trade struct {
	Date         string          `json:"date"`
	ISIN         string          `json:"isin"`
	Ticker       string          `json:"ticker"`
	SecurityName string          `json:"security_name"`
	InvestorID   string          `json:"investor_id"`
	InvestorName string          `json:"investor_name"`
	InvestorType string          `json:"investor_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	TradePrice   decimal.Decimal `json:"trade_price"`
	Amount       decimal.Decimal `json:"amount"`
}

// Gross is the absolute traded value
func (t *Trade) Gross() decimal.Decimal {
	return t.Amount.Abs()
}

// ActivitySummary aggregates trades for one counterparty: an investor when a
// security is queried, a security when an investor is queried.
// Buy/sell amounts are reported positive; NetAmount keeps the sign.
type ActivitySummary struct {
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	Ticker       string          `json:"ticker,omitempty"`
	InvestorType string          `json:"investor_type,omitempty"`
	Observations int             `json:"observations"`
	BuyQty       decimal.Decimal `json:"buy_qty"`
	BuyAmount    decimal.Decimal `json:"buy_amount"`
	SellQty      decimal.Decimal `json:"sell_qty"`
	SellAmount   decimal.Decimal `json:"sell_amount"`
	NetAmount    decimal.Decimal `json:"net_amount"`
}

// Add folds one trade into the summary
func (a *ActivitySummary) Add(t Trade) {
	a.Observations++
	switch {
	case t.Quantity.IsPositive():
		a.BuyQty = a.BuyQty.Add(t.Quantity)
		a.BuyAmount = a.BuyAmount.Add(t.Amount)
	case t.Quantity.IsNegative():
		a.SellQty = a.SellQty.Add(t.Quantity.Abs())
		a.SellAmount = a.SellAmount.Add(t.Amount.Abs())
	}
	a.NetAmount = a.NetAmount.Add(t.Amount)
}

// GrossAmount is buys plus sells
func (a *ActivitySummary) GrossAmount() decimal.Decimal {
	return a.BuyAmount.Add(a.SellAmount)
}

// InvestorPerformance ranks an investor by mark-to-market profit on the
// trades in a window: Profit = sum(qty * (last_price - trade_price)).
type InvestorPerformance struct {
	InvestorID    string          `json:"investor_id"`
	Name          string          `json:"name"`
	InvestorType  string          `json:"investor_type"`
	CountryCode   string          `json:"country_code"`
	Trades        int             `json:"trades"`
	Gross         decimal.Decimal `json:"gross"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent float64         `json:"profit_percent"`
}
