package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/namewasntdrown/ton-bot-sub000/internal/cache"
	"github.com/namewasntdrown/ton-bot-sub000/internal/client/dedust"
	"github.com/namewasntdrown/ton-bot-sub000/internal/config"
	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
	"github.com/namewasntdrown/ton-bot-sub000/internal/ton"
)

// ChainState is the slice of the chain indexer the executor needs.
type ChainState interface {
	TonBalance(ctx context.Context, account string) (*big.Int, error)
	JettonBalance(ctx context.Context, owner, jettonMaster string) (*big.Int, error)
	JettonDecimals(ctx context.Context, jettonMaster string) (int, error)
}

// DexClient resolves pools and vaults on the swap venue.
type DexClient interface {
	FindPool(ctx context.Context, jettonRawAddress string) (*dedust.Pool, error)
	VaultFor(ctx context.Context, asset string) (*dedust.Vault, error)
}

// outcome is the terminal result of executing one claimed order.
type outcome struct {
	status   string
	failCode string
	errText  string
	txHash   string
	// transient marks a pre-submission infrastructure error; the order is
	// retried in place instead of failing immediately.
	transient bool
	// estOutNano is the estimated TON proceeds of a sell, used to size
	// the propagated signal.
	estOutNano *big.Int
}

func failed(code, text string) outcome {
	return outcome{status: models.OrderFailed, failCode: code, errText: text}
}

func infra(err error) outcome {
	o := failed(models.FailSubmit, err.Error())
	o.transient = true
	return o
}

// Executor drains the swap order queue: claim, execute against the venue
// through the custody gateway, record the terminal result. Completed
// self-originated orders are handed to the fan-out sink so followers of
// the executing wallet copy the trade.
type Executor struct {
	Repo    repository.Repository
	Chain   ChainState
	Dex     DexClient
	Gateway ton.Gateway
	Sink    SignalSink
	Logger  *zap.Logger
	Config  config.ExecutorConfig

	decimals *cache.Cache[string, int]
}

func NewExecutor(repo repository.Repository, chain ChainState, dex DexClient, gateway ton.Gateway, sink SignalSink, logger *zap.Logger, cfg config.ExecutorConfig) *Executor {
	return &Executor{
		Repo:     repo,
		Chain:    chain,
		Dex:      dex,
		Gateway:  gateway,
		Sink:     sink,
		Logger:   logger,
		Config:   cfg,
		decimals: cache.New[string, int](time.Hour),
	}
}

// Run claims and executes orders until ctx is done. The queue being empty
// backs off by idle_delay, a claim error by error_delay; an order already
// claimed never makes the loop exit.
func (e *Executor) Run(ctx context.Context) error {
	idle := e.Config.IdleDelay
	if idle <= 0 {
		idle = 2 * time.Second
	}
	errDelay := e.Config.ErrorDelay
	if errDelay <= 0 {
		errDelay = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		order, err := e.Repo.ClaimNextOrder(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.Logger.Error("order claim failed", zap.Error(err))
			if !sleepCtx(ctx, errDelay) {
				return ctx.Err()
			}
			continue
		}
		if order == nil {
			if !sleepCtx(ctx, idle) {
				return ctx.Err()
			}
			continue
		}
		// A claimed order runs to its terminal status even when shutdown
		// starts mid-flight: the execution context detaches from the run
		// context and is bounded by the order timeout instead.
		orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.orderTimeout())
		e.processOrder(orderCtx, order)
		cancel()
	}
}

// ReleaseStuck requeues orders held in processing beyond the configured
// lease. Wired as a periodic job only when lease_seconds > 0.
func (e *Executor) ReleaseStuck(ctx context.Context) error {
	if e.Config.LeaseSeconds <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-time.Duration(e.Config.LeaseSeconds) * time.Second)
	n, err := e.Repo.ReleaseStuckOrders(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		e.Logger.Warn("requeued stuck orders", zap.Int64("count", n))
	}
	return nil
}

// processOrder runs one claimed order to a terminal status. A panic in
// the execution path fails the order instead of killing the loop, and a
// transient error before submission retries the held order in place
// rather than failing it.
func (e *Executor) processOrder(ctx context.Context, order *models.SwapOrder) {
	var res outcome
	for attempt := 0; ; attempt++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.Logger.Error("order execution panicked",
						zap.Uint64("order_id", order.ID),
						zap.Any("panic", r),
					)
					res = failed(models.FailSubmit, fmt.Sprintf("panic: %v", r))
				}
			}()
			res = e.execute(ctx, order)
		}()
		if !res.transient || attempt >= e.retryAttempts() || ctx.Err() != nil {
			break
		}
		e.Logger.Warn("transient error executing order, retrying",
			zap.Uint64("order_id", order.ID),
			zap.Int("attempt", attempt+1),
			zap.String("error", res.errText),
		)
		errDelay := e.Config.ErrorDelay
		if errDelay <= 0 {
			errDelay = 5 * time.Second
		}
		if !sleepCtx(ctx, errDelay) {
			break
		}
	}
	e.finish(ctx, order, res)
}

func (e *Executor) execute(ctx context.Context, order *models.SwapOrder) outcome {
	wallet, err := e.Repo.GetWalletByID(ctx, order.WalletID)
	if err != nil {
		return infra(err)
	}
	if wallet == nil {
		return failed(models.FailSubmit, fmt.Sprintf("wallet %d not found", order.WalletID))
	}

	switch order.Direction {
	case models.DirectionBuy:
		return e.executeBuy(ctx, order, wallet)
	case models.DirectionSell:
		return e.executeSell(ctx, order, wallet)
	}
	return failed(models.FailSubmit, fmt.Sprintf("unknown direction %q", order.Direction))
}

func (e *Executor) executeBuy(ctx context.Context, order *models.SwapOrder, wallet *models.Wallet) outcome {
	amountNano := ton.ToNano(order.TonAmount)
	if amountNano.Sign() <= 0 {
		return failed(models.FailSubmit, "non-positive buy amount")
	}

	balance, err := e.Chain.TonBalance(ctx, wallet.Address)
	if err != nil {
		return infra(err)
	}
	need := new(big.Int).Add(amountNano, e.reserveNano(e.Config.GasReserve, "0.3"))
	if balance.Cmp(need) < 0 {
		return failed(models.FailInsufficientTON,
			fmt.Sprintf("balance %s nanoton, need %s including gas reserve", balance, need))
	}

	pool, err := e.Dex.FindPool(ctx, order.TokenAddress)
	if err != nil {
		return infra(err)
	}
	if pool == nil {
		return failed(models.FailPoolNotFound,
			fmt.Sprintf("no pool for token %s", order.TokenAddress))
	}
	est, err := dedust.EstimateOut(pool, dedust.AssetNative, amountNano)
	if err != nil {
		return infra(err)
	}

	var minOut *big.Int
	if order.LimitPrice != nil && *order.LimitPrice != "" {
		price, err := decimal.NewFromString(*order.LimitPrice)
		if err != nil {
			return failed(models.FailSubmit, fmt.Sprintf("malformed limit price %q", *order.LimitPrice))
		}
		dec, err := e.tokenDecimals(ctx, order.TokenAddress)
		if err != nil {
			return infra(err)
		}
		minOut, err = ton.MinOutForLimit(order.TonAmount, price, dec)
		if err != nil {
			return failed(models.FailSubmit, err.Error())
		}
		if est.Cmp(minOut) < 0 {
			// Nothing was submitted; the limit rejection is terminal.
			return failed(models.FailPriceExceedsLimit,
				fmt.Sprintf("estimated out %s below limit minimum %s", est, minOut))
		}
	} else {
		minOut = e.applySlippage(est)
	}

	vault, err := e.Dex.VaultFor(ctx, dedust.AssetNative)
	if err != nil {
		return infra(err)
	}
	txHash, err := e.Gateway.SubmitSwap(ctx, wallet.ID, ton.SwapRequest{
		VaultAddress: vault.Address,
		PoolAddress:  pool.Address,
		AmountNano:   amountNano,
		MinOut:       minOut,
		Deadline:     time.Now().UTC().Add(e.swapDeadline()),
	})
	if err != nil {
		return failed(models.FailSubmit, err.Error())
	}
	return outcome{status: models.OrderCompleted, txHash: txHash}
}

func (e *Executor) executeSell(ctx context.Context, order *models.SwapOrder, wallet *models.Wallet) outcome {
	if order.SellPercent == nil || *order.SellPercent == "" {
		return failed(models.FailInvalidPercent, "missing sell percent")
	}

	balance, err := e.Chain.JettonBalance(ctx, wallet.Address, order.TokenAddress)
	if err != nil {
		return infra(err)
	}
	if balance == nil || balance.Sign() <= 0 {
		return failed(models.FailJettonBalanceZero,
			fmt.Sprintf("no balance of token %s", order.TokenAddress))
	}
	amount, err := ton.SellAmount(balance, *order.SellPercent)
	if err != nil {
		return failed(models.FailInvalidPercent, err.Error())
	}

	tonBalance, err := e.Chain.TonBalance(ctx, wallet.Address)
	if err != nil {
		return infra(err)
	}
	feeReserve := e.reserveNano(e.Config.FeeReserve, "0.15")
	if tonBalance.Cmp(feeReserve) < 0 {
		return failed(models.FailInsufficientTONForFees,
			fmt.Sprintf("balance %s nanoton below fee reserve %s", tonBalance, feeReserve))
	}

	pool, err := e.Dex.FindPool(ctx, order.TokenAddress)
	if err != nil {
		return infra(err)
	}
	if pool == nil {
		return failed(models.FailPoolNotFound,
			fmt.Sprintf("no pool for token %s", order.TokenAddress))
	}
	asset := dedust.JettonAsset(order.TokenAddress)
	est, err := dedust.EstimateOut(pool, asset, amount)
	if err != nil {
		return infra(err)
	}

	vault, err := e.Dex.VaultFor(ctx, asset)
	if err != nil {
		return infra(err)
	}
	txHash, err := e.Gateway.SubmitJettonSwap(ctx, wallet.ID, ton.JettonSwapRequest{
		JettonMaster: order.TokenAddress,
		VaultAddress: vault.Address,
		PoolAddress:  pool.Address,
		AmountUnits:  amount,
		MinOut:       e.applySlippage(est),
		Deadline:     time.Now().UTC().Add(e.swapDeadline()),
	})
	if err != nil {
		return failed(models.FailSubmit, err.Error())
	}
	return outcome{status: models.OrderCompleted, txHash: txHash, estOutNano: est}
}

func (e *Executor) finish(ctx context.Context, order *models.SwapOrder, res outcome) {
	var errText, txHash *string
	if res.errText != "" {
		t := truncate(res.errText, e.maxErrorLen())
		errText = &t
	}
	if res.txHash != "" {
		txHash = &res.txHash
	}

	err := e.Repo.FinishOrder(ctx, order.ID, res.status, res.failCode, errText, txHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotClaimable) {
			// Lost the claim (lease reaper or a competing finisher); the
			// surviving record wins.
			e.Logger.Warn("order finished elsewhere",
				zap.Uint64("order_id", order.ID),
			)
			return
		}
		e.Logger.Error("failed to record order result",
			zap.Uint64("order_id", order.ID),
			zap.String("status", res.status),
			zap.Error(err),
		)
		return
	}

	if res.status == models.OrderFailed {
		e.Logger.Warn("order failed",
			zap.Uint64("order_id", order.ID),
			zap.String("fail_code", res.failCode),
			zap.String("error", res.errText),
		)
		return
	}
	e.Logger.Info("order completed",
		zap.Uint64("order_id", order.ID),
		zap.String("tx_hash", res.txHash),
	)

	e.propagate(ctx, order, res)
}

// propagate hands a completed self-originated order to the fan-out sink,
// so the executing wallet acts as a leader for its own followers. Derived
// orders stop here.
func (e *Executor) propagate(ctx context.Context, order *models.SwapOrder, res outcome) {
	if e.Sink == nil || order.Derived() {
		return
	}
	wallet, err := e.Repo.GetWalletByID(ctx, order.WalletID)
	if err != nil || wallet == nil {
		e.Logger.Warn("skipping propagation, wallet lookup failed",
			zap.Uint64("order_id", order.ID),
			zap.Error(err),
		)
		return
	}

	amount := order.TonAmount
	if order.Direction == models.DirectionSell && amount.LessThanOrEqual(decimal.Zero) {
		// Sells are percent-sized; use the estimated proceeds.
		amount = ton.FromNano(res.estOutNano)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return
	}

	sig := models.Signal{
		ID:            uuid.New(),
		LeaderAddress: wallet.Address,
		Direction:     order.Direction,
		TokenAddress:  order.TokenAddress,
		TonAmount:     amount,
		Seq:           order.ID,
		SellPercent:   order.SellPercent,
	}
	if _, err := e.Sink.Ingest(ctx, sig, &order.ID); err != nil {
		e.Logger.Error("propagation failed",
			zap.Uint64("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func (e *Executor) tokenDecimals(ctx context.Context, jettonMaster string) (int, error) {
	if e.decimals == nil {
		e.decimals = cache.New[string, int](time.Hour)
	}
	return e.decimals.GetOrLoad(ctx, jettonMaster, func(ctx context.Context) (int, error) {
		return e.Chain.JettonDecimals(ctx, jettonMaster)
	})
}

// applySlippage converts an estimate into the minimum acceptable output:
// est * (10000 - slippage_bps) / 10000, floored.
func (e *Executor) applySlippage(est *big.Int) *big.Int {
	bps := int64(e.Config.SlippageBps)
	if bps <= 0 || bps >= 10000 {
		bps = 100
	}
	out := new(big.Int).Mul(est, big.NewInt(10000-bps))
	return out.Quo(out, big.NewInt(10000))
}

func (e *Executor) reserveNano(value, fallback string) *big.Int {
	d, err := decimal.NewFromString(value)
	if err != nil || d.IsNegative() {
		d, _ = decimal.NewFromString(fallback)
	}
	return ton.ToNano(d)
}

func (e *Executor) swapDeadline() time.Duration {
	if e.Config.SwapDeadline > 0 {
		return e.Config.SwapDeadline
	}
	return 5 * time.Minute
}

func (e *Executor) orderTimeout() time.Duration {
	if e.Config.OrderTimeout > 0 {
		return e.Config.OrderTimeout
	}
	return 10 * time.Minute
}

func (e *Executor) retryAttempts() int {
	if e.Config.RetryAttempts > 0 {
		return e.Config.RetryAttempts
	}
	return 3
}

func (e *Executor) maxErrorLen() int {
	if e.Config.MaxErrorLen > 0 {
		return e.Config.MaxErrorLen
	}
	return 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
