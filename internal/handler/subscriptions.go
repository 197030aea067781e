package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
	"github.com/namewasntdrown/ton-bot-sub000/internal/ton"
)

type SubscriptionHandler struct {
	Repo repository.Repository
}

func (h *SubscriptionHandler) Register(r *gin.Engine) {
	s := r.Group("/api/v1/subscriptions")
	s.GET("", h.list)
	s.POST("", h.create)
	s.GET("/:id", h.get)
	s.PUT("/:id", h.update)
	s.POST("/:id/start", h.start)
	s.POST("/:id/stop", h.stop)
	s.POST("/:id/reset", h.reset)
}

// subscriptionRequest carries a full or partial profile. Absent pointer
// fields leave the stored value untouched on update.
type subscriptionRequest struct {
	UserID        int64            `json:"user_id"`
	LeaderAddress *string          `json:"leader_address"`
	Name          *string          `json:"name"`
	SizingMode    *string          `json:"sizing_mode"`
	TonAmount     *decimal.Decimal `json:"ton_amount"`
	SellPercent   *string          `json:"sell_percent"`
	SlippageBps   *int             `json:"slippage_bps"`
	CopyBuy       *bool            `json:"copy_buy"`
	CopySell      *bool            `json:"copy_sell"`
	Platforms     []string         `json:"platforms"`
	WalletIDs     []int64          `json:"wallet_ids"`
}

// apply validates the request and folds it into the profile. Leader
// addresses are stored in raw form so the watcher and fan-out matching
// compare canonically.
func (req *subscriptionRequest) apply(sub *models.Subscription) error {
	if req.LeaderAddress != nil {
		if v := strings.TrimSpace(*req.LeaderAddress); v != "" {
			addr, err := ton.ParseAddress(v)
			if err != nil {
				return fmt.Errorf("invalid leader address: %w", err)
			}
			raw := addr.Raw()
			sub.LeaderAddress = &raw
		} else {
			sub.LeaderAddress = nil
		}
	}
	if req.Name != nil {
		sub.Name = req.Name
	}
	if req.SizingMode != nil {
		switch *req.SizingMode {
		case models.SizingSmart, models.SizingManual:
			sub.SizingMode = *req.SizingMode
		default:
			return fmt.Errorf("invalid sizing mode %q", *req.SizingMode)
		}
	}
	if req.TonAmount != nil {
		if req.TonAmount.IsNegative() {
			return fmt.Errorf("ton_amount must not be negative")
		}
		sub.TonAmount = *req.TonAmount
	}
	if req.SellPercent != nil {
		if v := strings.TrimSpace(*req.SellPercent); v != "" {
			if _, _, err := ton.ParsePercent(v); err != nil {
				return err
			}
			sub.SellPercent = &v
		} else {
			sub.SellPercent = nil
		}
	}
	if req.SlippageBps != nil {
		if *req.SlippageBps < 0 || *req.SlippageBps >= 10000 {
			return fmt.Errorf("slippage_bps out of range")
		}
		sub.SlippageBps = *req.SlippageBps
	}
	if req.CopyBuy != nil {
		sub.CopyBuy = *req.CopyBuy
	}
	if req.CopySell != nil {
		sub.CopySell = *req.CopySell
	}
	if req.Platforms != nil {
		for _, p := range req.Platforms {
			if !models.Platform(p).Valid() {
				return fmt.Errorf("unknown platform %q", p)
			}
		}
		raw, err := json.Marshal(req.Platforms)
		if err != nil {
			return err
		}
		sub.Platforms = raw
	}
	if req.WalletIDs != nil {
		raw, err := json.Marshal(req.WalletIDs)
		if err != nil {
			return err
		}
		sub.WalletIDs = raw
	}
	return nil
}

func (h *SubscriptionHandler) create(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	if req.UserID <= 0 {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	sub := &models.Subscription{
		UserID:     req.UserID,
		SizingMode: models.SizingSmart,
		CopyBuy:    true,
		CopySell:   true,
		Status:     models.SubscriptionIdle,
	}
	if err := req.apply(sub); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Repo.CreateSubscription(c.Request.Context(), sub); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Created(c, sub)
}

func (h *SubscriptionHandler) update(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	sub, err := h.Repo.GetSubscriptionByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if sub == nil {
		Error(c, http.StatusNotFound, "subscription not found", nil)
		return
	}
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	if err := req.apply(sub); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if sub.Status == models.SubscriptionRunning && !sub.CanRun() {
		Error(c, http.StatusConflict, "running subscription requires a leader address", nil)
		return
	}
	if err := h.Repo.UpdateSubscription(c.Request.Context(), sub); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sub, nil)
}

func (h *SubscriptionHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetSubscriptionByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "subscription not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *SubscriptionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := int64QueryPtr(c, "user_id")
	if userID == nil {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	items, err := h.Repo.ListSubscriptionsByUser(c.Request.Context(), *userID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *SubscriptionHandler) start(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	sub, err := h.Repo.GetSubscriptionByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if sub == nil {
		Error(c, http.StatusNotFound, "subscription not found", nil)
		return
	}
	if !sub.CanRun() {
		Error(c, http.StatusConflict, "subscription has no leader address", nil)
		return
	}
	if err := h.Repo.SetSubscriptionStatus(c.Request.Context(), id, models.SubscriptionRunning); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	sub.Status = models.SubscriptionRunning
	Ok(c, sub, nil)
}

func (h *SubscriptionHandler) stop(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.Repo.SetSubscriptionStatus(c.Request.Context(), id, models.SubscriptionIdle); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item, _ := h.Repo.GetSubscriptionByID(c.Request.Context(), id)
	Ok(c, item, nil)
}

// reset clears the profile back to its idle defaults. Profiles are never
// hard-deleted.
func (h *SubscriptionHandler) reset(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.Repo.ResetSubscription(c.Request.Context(), id); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item, _ := h.Repo.GetSubscriptionByID(c.Request.Context(), id)
	Ok(c, item, nil)
}
