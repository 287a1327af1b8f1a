package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/services"
)

// ActivityHandler serves the trading analyses
type ActivityHandler struct {
	activitySvc *services.ActivityService
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(activitySvc *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activitySvc: activitySvc}
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

// SearchSecurities handles GET /securities
// @Summary Search securities
// @Description Securities whose ticker, name or ISIN contains q, prefix matches first. Queries shorter than two characters return nothing.
// @Tags securities
// @Produce json
// @Param q query string true "Search text"
// @Param limit query int false "Maximum hits (default 20)"
// @Success 200 {object} models.SecuritySearchResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /securities [get]
func (h *ActivityHandler) SearchSecurities(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	q := c.Query("q")
	results, err := h.activitySvc.SearchSecurities(c.Request.Context(), q, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SecuritySearchResponse{Query: q, Results: results})
}

// SearchInvestors handles GET /investors
// @Summary Search investors
// @Description Investors whose id or name contains q. Queries shorter than two characters return nothing.
// @Tags investors
// @Produce json
// @Param q query string true "Search text"
// @Param limit query int false "Maximum hits"
// @Success 200 {object} models.InvestorSearchResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /investors [get]
func (h *ActivityHandler) SearchInvestors(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	q := c.Query("q")
	results, err := h.activitySvc.SearchInvestors(c.Request.Context(), q, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.InvestorSearchResponse{Query: q, Results: results})
}

// SecurityActivity handles GET /securities/:isin/activity
// @Summary Trading in one security per investor
// @Tags securities
// @Produce json
// @Param isin path string true "ISIN"
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} models.ActivityResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /securities/{isin}/activity [get]
func (h *ActivityHandler) SecurityActivity(c *gin.Context) {
	var req models.ActivityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, wc := services.NewWarningContext(c.Request.Context())
	resp, err := h.activitySvc.BySecurity(ctx, c.Param("isin"), req.From.ISO(), req.To.ISO())
	if err != nil {
		writeError(c, err)
		return
	}
	resp.Warnings = wc.GetWarnings()
	c.JSON(http.StatusOK, resp)
}

// InvestorActivity handles GET /investors/:id/activity
// @Summary Trading by one investor per security
// @Tags investors
// @Produce json
// @Param id path string true "Investor id"
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} models.ActivityResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /investors/{id}/activity [get]
func (h *ActivityHandler) InvestorActivity(c *gin.Context) {
	var req models.ActivityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, wc := services.NewWarningContext(c.Request.Context())
	resp, err := h.activitySvc.ByInvestor(ctx, c.Param("id"), req.From.ISO(), req.To.ISO())
	if err != nil {
		writeError(c, err)
		return
	}
	resp.Warnings = wc.GetWarnings()
	c.JSON(http.StatusOK, resp)
}

// Transactions handles GET /transactions
// @Summary Resolved trades
// @Description Trades for a security, an investor or both, valued at their trade price
// @Tags analyses
// @Produce json
// @Param isin query string false "ISIN"
// @Param investor_id query string false "Investor id"
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} models.TransactionsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /transactions [get]
func (h *ActivityHandler) Transactions(c *gin.Context) {
	var req models.TransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, wc := services.NewWarningContext(c.Request.Context())
	resp, err := h.activitySvc.Transactions(ctx, req.ISIN, req.InvestorID, req.From.ISO(), req.To.ISO())
	if err != nil {
		writeError(c, err)
		return
	}
	resp.Warnings = wc.GetWarnings()
	c.JSON(http.StatusOK, resp)
}

// BestInvestors handles GET /best-investors
// @Summary Investors ranked by profit
// @Description Mark-to-market profit of each investor's trades in the window against the last known price
// @Tags analyses
// @Produce json
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Param investor_type query string false "Privat or Organisasjon"
// @Param country query []string false "Country codes" collectionFormat(multi)
// @Param isin query []string false "ISINs" collectionFormat(multi)
// @Param min_trades query int false "Minimum number of trades"
// @Param min_gross query number false "Minimum gross traded value"
// @Param limit query int false "Maximum investors (default 100)"
// @Success 200 {object} models.BestInvestorsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /best-investors [get]
func (h *ActivityHandler) BestInvestors(c *gin.Context) {
	var req models.BestInvestorsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, wc := services.NewWarningContext(c.Request.Context())
	resp, err := h.activitySvc.BestInvestors(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	resp.Warnings = wc.GetWarnings()
	c.JSON(http.StatusOK, resp)
}
