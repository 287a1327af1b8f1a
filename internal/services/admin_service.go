package services

import (
	"context"
	"fmt"

	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
)

// AdminService reports on the contents of a store
type AdminService struct {
	dbPath       string
	investorRepo *repository.InvestorRepository
	securityRepo *repository.SecurityRepository
	positionRepo *repository.PositionRepository
	ledgerRepo   *repository.LedgerRepository
}

// NewAdminService creates a new AdminService
func NewAdminService(
	dbPath string,
	investorRepo *repository.InvestorRepository,
	securityRepo *repository.SecurityRepository,
	positionRepo *repository.PositionRepository,
	ledgerRepo *repository.LedgerRepository,
) *AdminService {
	return &AdminService{
		dbPath:       dbPath,
		investorRepo: investorRepo,
		securityRepo: securityRepo,
		positionRepo: positionRepo,
		ledgerRepo:   ledgerRepo,
	}
}

// Summary counts the rows of each table and the span of fact dates
func (s *AdminService) Summary(ctx context.Context) (*models.StoreSummary, error) {
	summary := &models.StoreSummary{Path: s.dbPath}

	var err error
	if summary.Investors, err = s.investorRepo.Count(ctx); err != nil {
		return nil, err
	}
	if summary.Securities, err = s.securityRepo.Count(ctx); err != nil {
		return nil, err
	}
	if summary.Facts, err = s.positionRepo.Count(ctx); err != nil {
		return nil, err
	}
	if summary.FirstDate, summary.LastDate, err = s.positionRepo.DateRange(ctx); err != nil {
		return nil, err
	}
	return summary, nil
}

// Ledger lists the most recently ingested files
func (s *AdminService) Ledger(ctx context.Context, limit int) (*models.LedgerResponse, error) {
	files, err := s.ledgerRepo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return &models.LedgerResponse{Files: files}, nil
}
