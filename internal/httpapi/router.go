package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/abujawed11/engage-swap-sub000/pkg/config"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/middleware"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Provide(NewRouter),
)

// NewRouter assembles the gin engine behind the shared HTTP server.
func NewRouter(cfg *config.Config, h *Handler) http.Handler {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", requireUser())
	{
		v1.GET("/queue", h.Queue)

		v1.POST("/claims/start", h.StartClaim)
		v1.POST("/claims/submit", h.SubmitClaim)

		v1.GET("/wallet/balance", h.Balance)
		v1.GET("/wallet/transactions", h.Transactions)

		v1.POST("/campaigns", h.CreateCampaign)
		v1.GET("/campaigns", h.ListCampaigns)
		v1.GET("/campaigns/:id", h.GetCampaign)
		v1.PATCH("/campaigns/:id", h.UpdateCampaign)
		v1.POST("/campaigns/:id/pause", h.PauseCampaign)
		v1.POST("/campaigns/:id/resume", h.ResumeCampaign)
		v1.DELETE("/campaigns/:id", h.DeleteCampaign)
		v1.POST("/campaigns/validate-url", h.ValidateURL)
	}

	admin := r.Group("/v1/admin", requireUser(), requireAdmin())
	{
		admin.POST("/wallet/adjust", h.AdminAdjustWallet)
		admin.GET("/wallet/:user_id/audit", h.AdminWalletAudit)
		admin.POST("/wallet/:user_id/recalculate", h.AdminRecalculate)
		admin.GET("/enforcement/:user_id", h.AdminEnforcementLogs)
		admin.GET("/config/:key", h.AdminGetConfig)
		admin.PUT("/config/:key", h.AdminSetConfig)
	}

	return r
}

const (
	ctxUserID = "user_id"

	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
)

// requireUser trusts the identity headers stamped by the gateway in front of
// this service; authentication itself happens upstream.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errutil.BaseError{
				Code:    errutil.StatusUnauthorized,
				Message: "missing user identity",
			}.JSON())
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(headerRole) != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, errutil.BaseError{
				Code:    errutil.StatusForbidden,
				Message: "admin role required",
			}.JSON())
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
