package httpapi

import (
	"errors"
	"net/http"

	"storefront-rewards/pkg/db/pagination"
	"storefront-rewards/pkg/errutil"
	"storefront-rewards/services/award"
	"storefront-rewards/services/ledger"
	"storefront-rewards/services/milestone"
	"storefront-rewards/services/order"
	"storefront-rewards/services/pointsconfig"
	"storefront-rewards/services/redemption"
	"storefront-rewards/services/referral"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler adapts the collaborator HTTP surface onto the service packages.
type Handler struct {
	ledger     *ledger.Service
	awards     *award.Engine
	redemption *redemption.Engine
	referrals  *referral.Tracker
	milestones *milestone.Detector
	configs    *pointsconfig.Resolver
	orders     *order.Service
}

type HandlerParams struct {
	fx.In

	Ledger     *ledger.Service
	Awards     *award.Engine
	Redemption *redemption.Engine
	Referrals  *referral.Tracker
	Milestones *milestone.Detector
	Configs    *pointsconfig.Resolver
	Orders     *order.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		ledger:     p.Ledger,
		awards:     p.Awards,
		redemption: p.Redemption,
		referrals:  p.Referrals,
		milestones: p.Milestones,
		configs:    p.Configs,
		orders:     p.Orders,
	}
}

type orderCompletedRequest struct {
	OrderID       string `json:"order_id" binding:"required"`
	UserID        string `json:"user_id" binding:"required"`
	TotalAmount   int64  `json:"total_amount" binding:"required"`
	Currency      string `json:"currency"`
	FirstPurchase bool   `json:"first_purchase"`
}

// OrderCompleted is the checkout collaborator webhook. It records the order
// snapshot and runs every accrual hook tied to a completed purchase. Replays
// are safe: each award is idempotent through its ledger reference.
func (h *Handler) OrderCompleted(c *gin.Context) {
	var req orderCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ctx := c.Request.Context()

	if err := h.orders.Record(ctx, &order.Order{
		ID:          req.OrderID,
		UserID:      req.UserID,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		Status:      order.StatusCompleted,
	}); err != nil {
		c.Error(mapServiceError(err))
		return
	}

	if err := h.awards.ForSpend(ctx, req.UserID, req.TotalAmount, req.OrderID); err != nil {
		c.Error(mapServiceError(err))
		return
	}

	if req.FirstPurchase {
		if err := h.awards.ForFirstPurchase(ctx, req.UserID, req.OrderID); err != nil {
			c.Error(mapServiceError(err))
			return
		}

		if err := h.referrals.OnReferredFirstPurchase(ctx, req.UserID); err != nil {
			// The spend award already committed; the referral hook retries
			// on the next replay of this event.
			zap.L().Error("referral purchase hook failed",
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "processed"})
}

type quizCompletedRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) QuizCompleted(c *gin.Context) {
	var req quizCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.awards.ForQuizCompletion(c.Request.Context(), req.UserID); err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "processed"})
}

type createReferralRequest struct {
	ReferrerID string `json:"referrer_id" binding:"required"`
	ReferredID string `json:"referred_id" binding:"required"`
	Code       string `json:"code"`
}

func (h *Handler) CreateReferral(c *gin.Context) {
	var req createReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ref, err := h.referrals.CreateReferral(c.Request.Context(), req.ReferrerID, req.ReferredID, req.Code)
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusCreated, ref)
}

type redeemRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Points  int64  `json:"points" binding:"required"`
	OrderID string `json:"order_id"`
}

func (h *Handler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	result, err := h.redemption.Redeem(c.Request.Context(), req.UserID, req.Points, req.OrderID)
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetBalance(c *gin.Context) {
	bal, err := h.ledger.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusOK, bal)
}

func (h *Handler) ListEntries(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.New(errutil.StatusBadRequest, "invalid pagination parameters", errutil.WithErr(err)))
		return
	}

	entries, info, err := h.ledger.EntriesPage(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "page_info": info})
}

func (h *Handler) Reconcile(c *gin.Context) {
	if err := h.ledger.Reconcile(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(errutil.New(errutil.StatusConflict, "ledger reconciliation failed", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "consistent"})
}

func (h *Handler) ListMilestones(c *gin.Context) {
	crossings, err := h.milestones.Crossings(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestones": crossings})
}

func (h *Handler) ListReferrals(c *gin.Context) {
	refs, err := h.referrals.ForReferrer(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"referrals": refs})
}

type createPointsConfigRequest struct {
	PointValueCurrency     float64 `json:"point_value_currency" binding:"required"`
	SpendPointsPer100Units int64   `json:"spend_points_per_100_units"`
	FirstPurchasePoints    int64   `json:"first_purchase_points"`
	ReferralSignupPoints   int64   `json:"referral_signup_points"`
	ReferralPurchasePoints int64   `json:"referral_purchase_points"`
	QuizCompletionPoints   int64   `json:"quiz_completion_points"`
	ExpiryMonths           int     `json:"expiry_months"`
}

func (h *Handler) CreatePointsConfig(c *gin.Context) {
	var req createPointsConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	cfg, err := h.configs.Create(c.Request.Context(), pointsconfig.CreateParams{
		PointValueCurrency:     req.PointValueCurrency,
		SpendPointsPer100Units: req.SpendPointsPer100Units,
		FirstPurchasePoints:    req.FirstPurchasePoints,
		ReferralSignupPoints:   req.ReferralSignupPoints,
		ReferralPurchasePoints: req.ReferralPurchasePoints,
		QuizCompletionPoints:   req.QuizCompletionPoints,
		ExpiryMonths:           req.ExpiryMonths,
	})
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) ActivePointsConfig(c *gin.Context) {
	cfg, err := h.configs.Active(c.Request.Context())
	if err != nil {
		c.Error(mapServiceError(err))
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// mapServiceError translates service sentinels into transport errors.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return errutil.UnprocessableEntity("insufficient balance", err)
	case errors.Is(err, ledger.ErrDuplicateReference),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, referral.ErrDuplicateReferral):
		return errutil.Conflict(err.Error(), err)
	case errors.Is(err, redemption.ErrInvalidOrder),
		errors.Is(err, referral.ErrSelfReferral),
		errors.Is(err, ledger.ErrInvalidCursor):
		return errutil.BadRequest(err.Error(), err)
	case errors.Is(err, pointsconfig.ErrConfigNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return errutil.NotFound(err.Error(), err)
	default:
		return errutil.Internal("internal server error", err)
	}
}
