package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
	"github.com/epeers/topchanges/internal/services"
)

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// writeError maps service errors onto HTTP statuses
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSecurityNotFound),
		errors.Is(err, repository.ErrInvestorNotFound),
		errors.Is(err, repository.ErrPositionNotFound),
		errors.Is(err, services.ErrWatchlistNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrInvalidParams):
		badRequest(c, err.Error())
	case errors.Is(err, database.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "busy",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
