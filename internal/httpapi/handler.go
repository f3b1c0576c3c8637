package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/services/campaign"
	"github.com/abujawed11/engage-swap-sub000/services/claim"
	"github.com/abujawed11/engage-swap-sub000/services/configstore"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
	"github.com/abujawed11/engage-swap-sub000/services/quiz"
	"github.com/abujawed11/engage-swap-sub000/services/wallet"
)

// Handler exposes the core services over the HTTP edge. Handlers stay thin:
// bind, call, render; everything interesting happens in the services.
type Handler struct {
	claims      *claim.Service
	campaigns   *campaign.Service
	wallet      *wallet.Service
	eligibility *eligibility.Engine
	config      *configstore.Store
}

type HandlerParams struct {
	fx.In

	Claims      *claim.Service
	Campaigns   *campaign.Service
	Wallet      *wallet.Service
	Eligibility *eligibility.Engine
	Config      *configstore.Store
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		claims:      p.Claims,
		campaigns:   p.Campaigns,
		wallet:      p.Wallet,
		eligibility: p.Eligibility,
		config:      p.Config,
	}
}

func queryLimit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

func (h *Handler) Queue(c *gin.Context) {
	entries, err := h.claims.Queue(c.Request.Context(), currentUser(c), queryLimit(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": entries})
}

type startClaimRequest struct {
	CampaignID string `json:"campaign_id" binding:"required"`
}

func (h *Handler) StartClaim(c *gin.Context) {
	var req startClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	out, err := h.claims.Start(c.Request.Context(), currentUser(c), req.CampaignID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type submitClaimRequest struct {
	SessionToken string   `json:"session_token" binding:"required"`
	Answers      []string `json:"answers" binding:"required"`
}

func (h *Handler) SubmitClaim(c *gin.Context) {
	var req submitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	out, err := h.claims.Submit(c.Request.Context(), req.SessionToken, req.Answers)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Balance(c *gin.Context) {
	balance, err := h.wallet.GetBalance(c.Request.Context(), currentUser(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) Transactions(c *gin.Context) {
	rows, err := h.wallet.ListTransactions(c.Request.Context(), currentUser(c), queryLimit(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

type createCampaignRequest struct {
	Title         string               `json:"title" binding:"required"`
	URL           string               `json:"url" binding:"required"`
	Payout        string               `json:"payout" binding:"required"`
	WatchDuration int                  `json:"watch_duration" binding:"required"`
	Total         int64                `json:"total" binding:"required"`
	Questions     []quiz.QuestionInput `json:"questions" binding:"required"`
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	payout, err := decimal.NewFromString(req.Payout)
	if err != nil {
		c.Error(errutil.ValidationFailed("payout must be a decimal string"))
		return
	}

	out, err := h.campaigns.Create(c.Request.Context(), campaign.CreateCampaignRequest{
		OwnerID:       currentUser(c),
		Title:         req.Title,
		URL:           req.URL,
		Payout:        payout,
		WatchDuration: req.WatchDuration,
		Total:         req.Total,
		Questions:     req.Questions,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	rows, err := h.campaigns.ListByOwner(c.Request.Context(), currentUser(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": rows})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	out, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type updateCampaignRequest struct {
	Title         *string              `json:"title"`
	URL           *string              `json:"url"`
	WatchDuration *int                 `json:"watch_duration"`
	Questions     []quiz.QuestionInput `json:"questions"`
}

func (h *Handler) UpdateCampaign(c *gin.Context) {
	var req updateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	out, err := h.campaigns.Update(c.Request.Context(), currentUser(c), c.Param("id"), campaign.UpdateCampaignRequest{
		Title:         req.Title,
		URL:           req.URL,
		WatchDuration: req.WatchDuration,
		Questions:     req.Questions,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) PauseCampaign(c *gin.Context) {
	out, err := h.campaigns.Pause(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ResumeCampaign(c *gin.Context) {
	out, err := h.campaigns.Resume(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteCampaign(c *gin.Context) {
	if err := h.campaigns.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type validateURLRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *Handler) ValidateURL(c *gin.Context) {
	var req validateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.campaigns.ValidateURL(c.Request.Context(), currentUser(c), c.ClientIP(), req.URL); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

type adminAdjustRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Credit      bool   `json:"credit"`
	Reason      string `json:"reason" binding:"required"`
	ReferenceID string `json:"reference_id" binding:"required"`
}

func (h *Handler) AdminAdjustWallet(c *gin.Context) {
	var req adminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.Error(errutil.ValidationFailed("amount must be a decimal string"))
		return
	}

	out, err := h.wallet.AdminAdjust(c.Request.Context(), req.UserID, amount, req.Credit, req.Reason, req.ReferenceID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AdminWalletAudit(c *gin.Context) {
	rows, err := h.wallet.ListAuditLogs(c.Request.Context(), c.Param("user_id"), queryLimit(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": rows})
}

func (h *Handler) AdminRecalculate(c *gin.Context) {
	balance, err := h.wallet.Recalculate(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) AdminEnforcementLogs(c *gin.Context) {
	rows, err := h.eligibility.ListEnforcementLogs(c.Request.Context(), c.Param("user_id"), queryLimit(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enforcement_logs": rows})
}

func (h *Handler) AdminGetConfig(c *gin.Context) {
	raw, err := h.config.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": raw})
}

func (h *Handler) AdminSetConfig(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.config.Set(c.Request.Context(), c.Param("key"), json.RawMessage(raw)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
