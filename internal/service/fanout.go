package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
	"github.com/namewasntdrown/ton-bot-sub000/internal/ton"
)

// ErrInvalidSignal rejects malformed signal ingestion at the boundary.
var ErrInvalidSignal = errors.New("invalid signal")

// Fanout turns one observed trade into zero or more derived swap orders,
// one per matching follower wallet. Each wallet's insertion is an
// independent outcome; one failure never aborts the siblings.
type Fanout struct {
	Repo   repository.Repository
	Logger *zap.Logger
	// MaxConcurrency bounds concurrent per-wallet inserts; 0 means 8.
	MaxConcurrency int
}

// Ingest validates the signal, resolves matching subscriptions, and
// creates derived orders. parentOrderID is set when the signal comes from
// a completed user-submitted order; an order that is itself derived is
// never fanned out again.
func (f *Fanout) Ingest(ctx context.Context, sig models.Signal, parentOrderID *uint64) (int, error) {
	if f == nil || f.Repo == nil {
		return 0, nil
	}

	leader, err := ton.ParseAddress(sig.LeaderAddress)
	if err != nil {
		return 0, fmt.Errorf("%w: leader address: %v", ErrInvalidSignal, err)
	}
	token, err := ton.ParseAddress(sig.TokenAddress)
	if err != nil {
		return 0, fmt.Errorf("%w: token address: %v", ErrInvalidSignal, err)
	}
	if sig.Direction != models.DirectionBuy && sig.Direction != models.DirectionSell {
		return 0, fmt.Errorf("%w: direction %q", ErrInvalidSignal, sig.Direction)
	}
	if sig.TonAmount.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: non-positive amount %s", ErrInvalidSignal, sig.TonAmount)
	}

	if parentOrderID != nil {
		parent, err := f.Repo.GetOrderByID(ctx, *parentOrderID)
		if err != nil {
			return 0, err
		}
		if parent == nil {
			return 0, fmt.Errorf("%w: parent order %d not found", ErrInvalidSignal, *parentOrderID)
		}
		if parent.Derived() {
			// A derived order must not propagate further.
			f.Logger.Warn("refusing to fan out a derived order",
				zap.Uint64("order_id", *parentOrderID),
			)
			return 0, nil
		}
	}

	subs, err := f.Repo.ListRunningSubscriptionsByLeader(ctx, leader.Raw())
	if err != nil {
		return 0, err
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	limit := f.MaxConcurrency
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)

	for i := range subs {
		sub := subs[i]
		if !f.matches(&sub, sig) {
			continue
		}
		order, ok := f.deriveOrder(&sub, sig, token.Raw(), parentOrderID)
		if !ok {
			continue
		}
		for _, walletID := range sub.WalletList() {
			o := order
			o.WalletID = walletID
			g.Go(func() error {
				if err := f.Repo.CreateOrder(gctx, &o); err != nil {
					// Isolated per-wallet failure; siblings proceed.
					f.Logger.Error("fan-out order insert failed",
						zap.Uint64("subscription_id", sub.ID),
						zap.Int64("wallet_id", o.WalletID),
						zap.Error(err),
					)
					return nil
				}
				created.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	n := int(created.Load())
	f.Logger.Info("signal fanned out",
		zap.String("signal_id", sig.ID.String()),
		zap.String("leader", leader.Raw()),
		zap.String("direction", sig.Direction),
		zap.Int("orders", n),
	)
	return n, nil
}

func (f *Fanout) matches(sub *models.Subscription, sig models.Signal) bool {
	switch sig.Direction {
	case models.DirectionBuy:
		if !sub.CopyBuy {
			return false
		}
	case models.DirectionSell:
		if !sub.CopySell {
			return false
		}
	}
	if sig.Platform != "" {
		return sub.PlatformAllowed(sig.Platform)
	}
	// Untagged signals (self-originated orders) only reach profiles
	// without a venue allow-list.
	return len(sub.PlatformList()) == 0
}

// deriveOrder computes the follower-side order for one profile. The
// returned order has no wallet assigned yet.
func (f *Fanout) deriveOrder(sub *models.Subscription, sig models.Signal, tokenRaw string, parentOrderID *uint64) (models.SwapOrder, bool) {
	order := models.SwapOrder{
		UserID:        sub.UserID,
		TokenAddress:  tokenRaw,
		Direction:     sig.Direction,
		TonAmount:     sig.TonAmount,
		ParentOrderID: parentOrderID,
		Status:        models.OrderQueued,
	}

	switch sig.Direction {
	case models.DirectionBuy:
		if sub.SizingMode == models.SizingManual {
			order.TonAmount = sub.TonAmount
		}
		if order.TonAmount.LessThanOrEqual(decimal.Zero) {
			f.Logger.Warn("skipping profile with non-positive buy amount",
				zap.Uint64("subscription_id", sub.ID),
			)
			return models.SwapOrder{}, false
		}
	case models.DirectionSell:
		percent := sub.SellPercent
		if sub.SizingMode == models.SizingSmart && sig.SellPercent != nil {
			// Smart mode mirrors the leader's percent when resolvable.
			percent = sig.SellPercent
		}
		if percent == nil || *percent == "" {
			f.Logger.Warn("skipping profile without sell percent",
				zap.Uint64("subscription_id", sub.ID),
			)
			return models.SwapOrder{}, false
		}
		p := *percent
		order.SellPercent = &p
	}
	return order, true
}
