package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
	"github.com/namewasntdrown/ton-bot-sub000/internal/ton"
)

type OrderHandler struct {
	Repo repository.Repository
}

func (h *OrderHandler) Register(r *gin.Engine) {
	o := r.Group("/api/v1/orders")
	o.GET("", h.list)
	o.POST("", h.submit)
	o.GET("/:id", h.get)
}

type submitOrderRequest struct {
	UserID       int64           `json:"user_id"`
	WalletID     int64           `json:"wallet_id"`
	TokenAddress string          `json:"token_address"`
	Direction    string          `json:"direction"`
	TonAmount    decimal.Decimal `json:"ton_amount"`
	LimitPrice   *string         `json:"limit_price"`
	SellPercent  *string         `json:"sell_percent"`
}

// submit enqueues a user-originated swap order. Malformed orders are
// rejected here so the queue only ever holds executable work.
func (h *OrderHandler) submit(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	if req.UserID <= 0 {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	token, err := ton.ParseAddress(strings.TrimSpace(req.TokenAddress))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid token address: "+err.Error(), nil)
		return
	}

	order := &models.SwapOrder{
		UserID:       req.UserID,
		WalletID:     req.WalletID,
		TokenAddress: token.Raw(),
		Direction:    req.Direction,
		TonAmount:    req.TonAmount,
		Status:       models.OrderQueued,
	}

	switch req.Direction {
	case models.DirectionBuy:
		if req.TonAmount.LessThanOrEqual(decimal.Zero) {
			Error(c, http.StatusBadRequest, "ton_amount must be positive", nil)
			return
		}
		if req.LimitPrice != nil && *req.LimitPrice != "" {
			price, err := decimal.NewFromString(*req.LimitPrice)
			if err != nil || price.LessThanOrEqual(decimal.Zero) {
				Error(c, http.StatusBadRequest, "limit_price must be a positive decimal", nil)
				return
			}
			order.LimitPrice = req.LimitPrice
		}
	case models.DirectionSell:
		if req.SellPercent == nil || *req.SellPercent == "" {
			Error(c, http.StatusBadRequest, "sell_percent is required", nil)
			return
		}
		if _, _, err := ton.ParsePercent(*req.SellPercent); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		order.SellPercent = req.SellPercent
	default:
		Error(c, http.StatusBadRequest, "direction must be buy or sell", nil)
		return
	}

	wallet, err := h.Repo.GetWalletByID(c.Request.Context(), req.WalletID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if wallet == nil || wallet.UserID != req.UserID {
		Error(c, http.StatusBadRequest, "wallet not found for user", nil)
		return
	}

	if err := h.Repo.CreateOrder(c.Request.Context(), order); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Created(c, order)
}

func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var status *string
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status = &v
	}
	params := repository.ListOrdersParams{
		UserID: int64QueryPtr(c, "user_id"),
		Status: status,
		Limit:  limit,
		Offset: offset,
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, listMeta(limit, offset, len(items)))
}
