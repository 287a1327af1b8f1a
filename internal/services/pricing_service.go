package services

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/topchanges/internal/cache"
	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
	"github.com/epeers/topchanges/internal/util"
)

// PricingService resolves trade prices and maintains last-known prices
type PricingService struct {
	cache     *cache.MemoryCache
	priceRepo *repository.PriceRepository
	secRepo   *repository.SecurityRepository
	dbPath    string
}

// NewPricingService creates a new PricingService. memCache may be nil, in
// which case last prices are read from the store on every call.
func NewPricingService(
	memCache *cache.MemoryCache,
	priceRepo *repository.PriceRepository,
	secRepo *repository.SecurityRepository,
	dbPath string,
) *PricingService {
	return &PricingService{
		cache:     memCache,
		priceRepo: priceRepo,
		secRepo:   secRepo,
		dbPath:    dbPath,
	}
}

// StoreVersion identifies the current contents of a store file by the
// modification times of the file and its write-ahead log. An empty string
// means the store does not exist.
func StoreVersion(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	v := fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size())
	if wal, err := os.Stat(path + "-wal"); err == nil {
		v += fmt.Sprintf(":%d:%d", wal.ModTime().UnixNano(), wal.Size())
	}
	return v
}

// ResolveTradePrice returns the trade price an investor's position change in
// a security on a date is valued at, along with the security's last price
func (s *PricingService) ResolveTradePrice(ctx context.Context, isin, investorID, date string) (*models.TradePriceResponse, error) {
	if _, err := util.ParseISODate(date); err != nil {
		return nil, fmt.Errorf("%w: date %q is not a date", ErrInvalidParams, date)
	}

	sec, err := s.secRepo.GetByISIN(ctx, isin)
	if err != nil {
		return nil, err
	}

	price, err := s.priceRepo.ResolveTradePrice(ctx, isin, investorID, date)
	if err != nil {
		return nil, err
	}
	if price == nil {
		AddWarning(ctx, models.Warning{
			Code:    models.WarnNoTradePrice,
			Message: fmt.Sprintf("no positive price recorded for %s on %s or the day after", isin, date),
		})
	}

	return &models.TradePriceResponse{
		ISIN:       isin,
		InvestorID: investorID,
		Date:       date,
		TradePrice: price,
		LastPrice:  sec.LastPrice,
	}, nil
}

// Backfill recomputes every security's last price from the facts in q's
// store, optionally limited to facts dated on or after since.
func (s *PricingService) Backfill(ctx context.Context, q database.DBTX, since string) (int64, error) {
	defer TrackTime("PricingService.Backfill", time.Now())

	n, err := s.priceRepo.BackfillLastPrice(ctx, q, since)
	if err != nil {
		return 0, err
	}
	if since == "" {
		log.Infof("last price backfill: %d securities updated", n)
	} else {
		log.Infof("last price backfill since %s: %d securities updated", since, n)
	}
	if s.cache != nil {
		s.cache.Clear()
	}
	return n, nil
}

// LastPrices returns the last price of every security that has one
func (s *PricingService) LastPrices(ctx context.Context) (map[string]float64, error) {
	version := StoreVersion(s.dbPath)
	if s.cache != nil && version != "" {
		if prices, ok := s.cache.GetLastPrices(version); ok {
			return prices, nil
		}
	}

	prices, err := s.secRepo.LastPrices(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && version != "" {
		s.cache.SetLastPrices(version, prices)
	}
	return prices, nil
}
