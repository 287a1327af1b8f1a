package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/epeers/topchanges/internal/services"
)

// AdminHandler handles admin endpoints
type AdminHandler struct {
	adminSvc   *services.AdminService
	pricingSvc *services.PricingService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(adminSvc *services.AdminService, pricingSvc *services.PricingService) *AdminHandler {
	return &AdminHandler{
		adminSvc:   adminSvc,
		pricingSvc: pricingSvc,
	}
}

// Store handles GET /admin/store
// @Summary Describe the served store
// @Description Row counts and the span of fact dates in the store the API reads
// @Tags admin
// @Produce json
// @Success 200 {object} models.StoreSummary
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/store [get]
func (h *AdminHandler) Store(c *gin.Context) {
	summary, err := h.adminSvc.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Ledger handles GET /admin/ledger
// @Summary List ingested files
// @Tags admin
// @Produce json
// @Param limit query int false "Maximum entries (default 100)"
// @Success 200 {object} models.LedgerResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/ledger [get]
func (h *AdminHandler) Ledger(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	resp, err := h.adminSvc.Ledger(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// TradePrice handles GET /admin/prices/:isin
// @Summary Resolve a trade price
// @Description The price the investor's position change in the security on date is valued at, with next-day fallback, and the security's last price
// @Tags admin
// @Produce json
// @Param isin path string true "ISIN"
// @Param investor query string true "Investor ID"
// @Param date query string true "Trade date (YYYY-MM-DD)"
// @Success 200 {object} models.TradePriceResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/prices/{isin} [get]
func (h *AdminHandler) TradePrice(c *gin.Context) {
	date := c.Query("date")
	investor := c.Query("investor")
	if date == "" || investor == "" {
		badRequest(c, "investor and date are required")
		return
	}

	ctx, wc := services.NewWarningContext(c.Request.Context())
	resp, err := h.pricingSvc.ResolveTradePrice(ctx, c.Param("isin"), investor, date)
	if err != nil {
		writeError(c, err)
		return
	}
	resp.Warnings = wc.GetWarnings()
	c.JSON(http.StatusOK, resp)
}
