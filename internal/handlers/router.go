package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/epeers/topchanges/internal/middleware"
)

// NewRouter wires every read-only endpoint onto a gin engine
func NewRouter(activity *ActivityHandler, watchlists *WatchlistHandler, admin *AdminHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RequestID(), middleware.ReadOnly())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/securities", activity.SearchSecurities)
	router.GET("/securities/:isin/activity", activity.SecurityActivity)
	router.GET("/investors", activity.SearchInvestors)
	router.GET("/investors/:id/activity", activity.InvestorActivity)
	router.GET("/transactions", activity.Transactions)
	router.GET("/best-investors", activity.BestInvestors)

	router.GET("/watchlists", watchlists.List)
	router.GET("/watchlists/:name/activity", watchlists.Activity)

	router.GET("/admin/store", admin.Store)
	router.GET("/admin/ledger", admin.Ledger)
	router.GET("/admin/prices/:isin", admin.TradePrice)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return router
}
