package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/services"
)

// WatchlistHandler serves owner watchlists
type WatchlistHandler struct {
	watchlistSvc *services.WatchlistService
}

// NewWatchlistHandler creates a new WatchlistHandler
func NewWatchlistHandler(watchlistSvc *services.WatchlistService) *WatchlistHandler {
	return &WatchlistHandler{watchlistSvc: watchlistSvc}
}

// List handles GET /watchlists
// @Summary List watchlists
// @Tags watchlists
// @Produce json
// @Success 200 {object} models.WatchlistsResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /watchlists [get]
func (h *WatchlistHandler) List(c *gin.Context) {
	lists, err := h.watchlistSvc.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.WatchlistsResponse{Watchlists: lists})
}

// Activity handles GET /watchlists/:name/activity
// @Summary Trading by a watchlist's investors per security
// @Description Resolves the watchlist's owner patterns to investors and summarizes what they traded
// @Tags watchlists
// @Produce json
// @Param name path string true "Watchlist name (file name without .csv)"
// @Param from query string true "First day (YYYY-MM-DD)"
// @Param to query string true "Last day (YYYY-MM-DD)"
// @Success 200 {object} models.WatchlistActivityResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /watchlists/{name}/activity [get]
func (h *WatchlistHandler) Activity(c *gin.Context) {
	var req models.ActivityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, wc := services.NewWarningContext(c.Request.Context())
	resp, err := h.watchlistSvc.Activity(ctx, c.Param("name"), req.From.ISO(), req.To.ISO())
	if err != nil {
		writeError(c, err)
		return
	}
	resp.Warnings = append(resp.Warnings, wc.GetWarnings()...)
	c.JSON(http.StatusOK, resp)
}
