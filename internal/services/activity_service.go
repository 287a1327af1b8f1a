package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
	"github.com/epeers/topchanges/internal/util"
)

// ErrInvalidParams is returned for requests the analyses cannot answer as
// posed: malformed or inverted dates, unknown selectors, missing subjects.
var ErrInvalidParams = errors.New("invalid parameters")

// Investor type selectors accepted by BestInvestors.
const (
	InvestorTypePrivate      = "Privat"
	InvestorTypeOrganisation = "Organisasjon"
)

const defaultBestInvestorsLimit = 100

// ActivityService answers the analytical queries over resolved trades
type ActivityService struct {
	priceRepo  *repository.PriceRepository
	secRepo    *repository.SecurityRepository
	invRepo    *repository.InvestorRepository
	pricingSvc *PricingService
}

// NewActivityService creates a new ActivityService
func NewActivityService(
	priceRepo *repository.PriceRepository,
	secRepo *repository.SecurityRepository,
	invRepo *repository.InvestorRepository,
	pricingSvc *PricingService,
) *ActivityService {
	return &ActivityService{
		priceRepo:  priceRepo,
		secRepo:    secRepo,
		invRepo:    invRepo,
		pricingSvc: pricingSvc,
	}
}

func validateWindow(from, to string) error {
	f, err := util.ParseISODate(from)
	if err != nil {
		return fmt.Errorf("%w: from %q is not a date", ErrInvalidParams, from)
	}
	t, err := util.ParseISODate(to)
	if err != nil {
		return fmt.Errorf("%w: to %q is not a date", ErrInvalidParams, to)
	}
	if t.Before(f) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidParams, from, to)
	}
	return nil
}

// pricedRow is a trade row whose trade price resolved to a positive value
type pricedRow struct {
	repository.TradeRow
	price decimal.Decimal
	qty   decimal.Decimal
}

func (p pricedRow) trade() models.Trade {
	return models.Trade{
		Date:         p.Date,
		ISIN:         p.ISIN,
		Ticker:       p.Ticker,
		SecurityName: p.ISINName,
		InvestorID:   p.InvestorID,
		InvestorName: models.DisplayName(p.FirstName, p.LastName, p.InvestorID),
		InvestorType: p.InvestorType,
		Quantity:     p.qty,
		TradePrice:   p.price,
		Amount:       p.qty.Mul(p.price),
	}
}

// pricedTrades loads the trades matching f and drops those without a
// positive trade price. The number dropped is reported as one warning.
func (s *ActivityService) pricedTrades(ctx context.Context, f repository.TradeFilter) ([]pricedRow, error) {
	rows, err := s.priceRepo.Trades(ctx, f)
	if err != nil {
		return nil, err
	}

	priced := make([]pricedRow, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if r.TradePrice == nil || *r.TradePrice <= 0 {
			skipped++
			continue
		}
		priced = append(priced, pricedRow{
			TradeRow: r,
			price:    decimal.NewFromFloat(*r.TradePrice),
			qty:      decimal.NewFromFloat(r.ChangeQty),
		})
	}
	if skipped > 0 {
		AddWarning(ctx, models.Warning{
			Code:    models.WarnNoTradePrice,
			Message: fmt.Sprintf("%d of %d observations had no positive trade price and were excluded from amounts", skipped, len(rows)),
		})
	}
	return priced, nil
}

// summarize groups trades by key and orders the groups by gross amount,
// largest first.
func summarize(rows []pricedRow, key func(pricedRow) string, describe func(*models.ActivitySummary, pricedRow)) []models.ActivitySummary {
	byKey := make(map[string]*models.ActivitySummary)
	var order []string
	for _, r := range rows {
		k := key(r)
		sum, ok := byKey[k]
		if !ok {
			sum = &models.ActivitySummary{Key: k}
			describe(sum, r)
			byKey[k] = sum
			order = append(order, k)
		}
		sum.Add(r.trade())
	}

	result := make([]models.ActivitySummary, 0, len(order))
	for _, k := range order {
		result = append(result, *byKey[k])
	}
	sort.SliceStable(result, func(i, j int) bool {
		gi, gj := result[i].GrossAmount(), result[j].GrossAmount()
		if !gi.Equal(gj) {
			return gi.GreaterThan(gj)
		}
		return result[i].Key < result[j].Key
	})
	return result
}

func describeInvestor(sum *models.ActivitySummary, r pricedRow) {
	sum.Name = models.DisplayName(r.FirstName, r.LastName, r.InvestorID)
	sum.InvestorType = r.InvestorType
}

func describeSecurity(sum *models.ActivitySummary, r pricedRow) {
	sum.Name = r.ISINName
	sum.Ticker = r.Ticker
}

// BySecurity summarizes the trading in one security per investor
func (s *ActivityService) BySecurity(ctx context.Context, isin, from, to string) (*models.ActivityResponse, error) {
	defer TrackTime("ActivityService.BySecurity", time.Now())
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	if _, err := s.secRepo.GetByISIN(ctx, isin); err != nil {
		return nil, err
	}

	rows, err := s.pricedTrades(ctx, repository.TradeFilter{From: from, To: to, ISINs: []string{isin}})
	if err != nil {
		return nil, err
	}
	return &models.ActivityResponse{
		Subject: isin,
		From:    from,
		To:      to,
		Rows:    summarize(rows, func(r pricedRow) string { return r.InvestorID }, describeInvestor),
	}, nil
}

// ByInvestor summarizes one investor's trading per security
func (s *ActivityService) ByInvestor(ctx context.Context, investorID, from, to string) (*models.ActivityResponse, error) {
	defer TrackTime("ActivityService.ByInvestor", time.Now())
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	if _, err := s.invRepo.GetByID(ctx, investorID); err != nil {
		return nil, err
	}

	rows, err := s.pricedTrades(ctx, repository.TradeFilter{From: from, To: to, InvestorIDs: []string{investorID}})
	if err != nil {
		return nil, err
	}
	return &models.ActivityResponse{
		Subject: investorID,
		From:    from,
		To:      to,
		Rows:    summarize(rows, func(r pricedRow) string { return r.ISIN }, describeSecurity),
	}, nil
}

// Transactions lists resolved trades for a security, an investor or both,
// by date and then by absolute amount, largest first.
func (s *ActivityService) Transactions(ctx context.Context, isin, investorID, from, to string) (*models.TransactionsResponse, error) {
	defer TrackTime("ActivityService.Transactions", time.Now())
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	if isin == "" && investorID == "" {
		return nil, fmt.Errorf("%w: an isin or an investor_id is required", ErrInvalidParams)
	}

	f := repository.TradeFilter{From: from, To: to}
	if isin != "" {
		f.ISINs = []string{isin}
	}
	if investorID != "" {
		f.InvestorIDs = []string{investorID}
	}
	rows, err := s.pricedTrades(ctx, f)
	if err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, r.trade())
	}
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Date != trades[j].Date {
			return trades[i].Date < trades[j].Date
		}
		return trades[i].Gross().GreaterThan(trades[j].Gross())
	})
	return &models.TransactionsResponse{From: from, To: to, Trades: trades}, nil
}

// TopSecurities summarizes per security what a set of investors traded
func (s *ActivityService) TopSecurities(ctx context.Context, investorIDs []string, from, to string) ([]models.ActivitySummary, error) {
	defer TrackTime("ActivityService.TopSecurities", time.Now())
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	if len(investorIDs) == 0 {
		return []models.ActivitySummary{}, nil
	}

	rows, err := s.pricedTrades(ctx, repository.TradeFilter{From: from, To: to, InvestorIDs: investorIDs})
	if err != nil {
		return nil, err
	}
	return summarize(rows, func(r pricedRow) string { return r.ISIN }, describeSecurity), nil
}

// MatchesInvestorType reports whether a stored investor type falls under a
// selector. Stored types vary between extracts ("P", "Privat", "person",
// "ORG", "AS" ...), so matching is by normalized fragments. An empty
// selector, "Alle" or "Begge" matches everything.
func MatchesInvestorType(selected, raw string) (bool, error) {
	sel := strings.ToLower(strings.TrimSpace(selected))
	t := strings.ToLower(strings.TrimSpace(raw))

	switch t {
	case "p", "priv", "privat", "private", "person", "individual":
		t = "privat"
	case "o", "org", "organisasjon", "organization", "organisation", "company", "firm", "corporate":
		t = "org"
	}

	containsAny := func(fragments ...string) bool {
		for _, f := range fragments {
			if strings.Contains(t, f) {
				return true
			}
		}
		return false
	}

	switch sel {
	case "", "alle", "all", "begge", "both":
		return true, nil
	case "privat", "private", "p":
		return containsAny("priv", "person", "individual"), nil
	case "organisasjon", "organisation", "organization", "org", "o":
		return containsAny("org", "company", "firm", "corpor", "as", "asa", "ltd", "plc"), nil
	}
	return false, fmt.Errorf("%w: unknown investor type %q", ErrInvalidParams, selected)
}

func countrySet(codes []string) map[string]bool {
	set := make(map[string]bool)
	for _, c := range codes {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			set[c] = true
		}
	}
	return set
}

type performanceBuilder struct {
	perf  models.InvestorPerformance
	gross decimal.Decimal
	prof  decimal.Decimal
}

// BestInvestors ranks investors by mark-to-market profit on their trades in
// the window. A trade earns qty * (last_price - trade_price), so a sale
// profits when the price has since fallen. Securities without a last price
// count at zero.
func (s *ActivityService) BestInvestors(ctx context.Context, req models.BestInvestorsRequest) (*models.BestInvestorsResponse, error) {
	defer TrackTime("ActivityService.BestInvestors", time.Now())
	from, to := req.From.ISO(), req.To.ISO()
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	if _, err := MatchesInvestorType(req.InvestorType, ""); err != nil {
		return nil, err
	}

	var isins []string
	for _, isin := range req.ISINs {
		if isin = strings.TrimSpace(isin); isin != "" {
			isins = append(isins, isin)
		}
	}
	rows, err := s.pricedTrades(ctx, repository.TradeFilter{From: from, To: to, ISINs: isins})
	if err != nil {
		return nil, err
	}
	lastPrices, err := s.pricingSvc.LastPrices(ctx)
	if err != nil {
		return nil, err
	}

	countries := countrySet(req.Countries)
	byInvestor := make(map[string]*performanceBuilder)
	for _, r := range rows {
		if ok, _ := MatchesInvestorType(req.InvestorType, r.InvestorType); !ok {
			continue
		}
		if len(countries) > 0 && !countries[strings.ToUpper(strings.TrimSpace(r.CountryCode))] {
			continue
		}

		b, ok := byInvestor[r.InvestorID]
		if !ok {
			b = &performanceBuilder{perf: models.InvestorPerformance{
				InvestorID:   r.InvestorID,
				Name:         models.DisplayName(r.FirstName, r.LastName, r.InvestorID),
				InvestorType: r.InvestorType,
				CountryCode:  r.CountryCode,
			}}
			byInvestor[r.InvestorID] = b
		}
		last := decimal.NewFromFloat(lastPrices[r.ISIN])
		b.perf.Trades++
		b.gross = b.gross.Add(r.qty.Abs().Mul(r.price))
		b.prof = b.prof.Add(r.qty.Mul(last.Sub(r.price)))
	}

	minGross := decimal.NewFromFloat(req.MinGross)
	result := make([]models.InvestorPerformance, 0, len(byInvestor))
	for _, b := range byInvestor {
		if b.perf.Trades < req.MinTrades || b.gross.LessThan(minGross) {
			continue
		}
		b.perf.Gross = b.gross
		b.perf.Profit = b.prof
		if b.gross.IsPositive() {
			b.perf.ProfitPercent = b.prof.Div(b.gross).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		result = append(result, b.perf)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Profit.Equal(result[j].Profit) {
			return result[i].Profit.GreaterThan(result[j].Profit)
		}
		return result[i].InvestorID < result[j].InvestorID
	})

	limit := req.Limit
	if limit <= 0 {
		limit = defaultBestInvestorsLimit
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return &models.BestInvestorsResponse{From: from, To: to, Investors: result}, nil
}

// SearchSecurities is the security picker
func (s *ActivityService) SearchSecurities(ctx context.Context, q string, limit int) ([]models.SecuritySuggestion, error) {
	return s.secRepo.Search(ctx, q, limit)
}

// SearchInvestors is the investor picker
func (s *ActivityService) SearchInvestors(ctx context.Context, q string, limit int) ([]models.InvestorMatch, error) {
	return s.invRepo.Search(ctx, q, limit)
}
