package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
	"github.com/namewasntdrown/ton-bot-sub000/internal/ton"
)

type WalletHandler struct {
	Repo repository.Repository
}

func (h *WalletHandler) Register(r *gin.Engine) {
	w := r.Group("/api/v1/wallets")
	w.GET("", h.list)
	w.POST("", h.create)
}

type createWalletRequest struct {
	UserID  int64  `json:"user_id"`
	Address string `json:"address"`
}

func (h *WalletHandler) create(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	if req.UserID <= 0 {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	addr, err := ton.ParseAddress(strings.TrimSpace(req.Address))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid address: "+err.Error(), nil)
		return
	}
	item := &models.Wallet{
		UserID:  req.UserID,
		Address: addr.Raw(),
	}
	if err := h.Repo.CreateWallet(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Created(c, item)
}

func (h *WalletHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := int64QueryPtr(c, "user_id")
	if userID == nil {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	items, err := h.Repo.ListWalletsByUser(c.Request.Context(), *userID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
