package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/namewasntdrown/ton-bot-sub000/internal/client/tonapi"
	"github.com/namewasntdrown/ton-bot-sub000/internal/config"
	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
	"github.com/namewasntdrown/ton-bot-sub000/internal/ton"
)

// ChainEvents is the slice of the chain indexer the watcher needs.
type ChainEvents interface {
	AccountEvents(ctx context.Context, account string, limit int) ([]tonapi.AccountEvent, error)
}

// SignalSink receives extracted trade signals.
type SignalSink interface {
	Ingest(ctx context.Context, sig models.Signal, parentOrderID *uint64) (int, error)
}

type trackedLeader struct {
	Friendly string
	Raw      string

	// mu serializes polls for this leader: the interval sweep and the
	// stream fast path must never interleave cursor updates.
	mu sync.Mutex
	// lastSeq is the highest event logical time already handled.
	lastSeq uint64
	// seeded is false until the first fetch, which only positions
	// lastSeq at the newest event so history is not replayed.
	seeded bool
}

// Watcher polls the chain indexer for activity on tracked leader wallets
// and feeds extracted signals into the fan-out engine. Sequence state is
// in-memory only; restarts reseed from the chain.
type Watcher struct {
	Repo   repository.Repository
	Chain  ChainEvents
	Sink   SignalSink
	Logger *zap.Logger
	Config config.WatcherConfig

	mu      sync.Mutex
	leaders map[string]*trackedLeader
	// streamResub wakes the stream loop to re-send its subscription set
	// after the tracked-leader set gains members.
	streamResub chan struct{}
}

// RefreshSources reloads the tracked-leader set from the subscription
// store: newly running leaders are added, leaders with no running
// subscription are dropped. Unparsable addresses are logged and skipped.
func (w *Watcher) RefreshSources(ctx context.Context) error {
	if w == nil || w.Repo == nil {
		return nil
	}
	addrs, err := w.Repo.ListRunningLeaderAddresses(ctx)
	if err != nil {
		return err
	}

	current := make(map[string]string, len(addrs))
	for _, a := range addrs {
		parsed, err := ton.ParseAddress(a)
		if err != nil {
			w.Logger.Warn("skipping unparsable leader address",
				zap.String("address", a),
				zap.Error(err),
			)
			continue
		}
		current[parsed.Raw()] = parsed.Friendly()
	}

	w.mu.Lock()
	if w.leaders == nil {
		w.leaders = make(map[string]*trackedLeader)
	}
	added := false
	for raw, friendly := range current {
		if _, ok := w.leaders[raw]; !ok {
			w.leaders[raw] = &trackedLeader{Friendly: friendly, Raw: raw}
			w.Logger.Info("tracking leader", zap.String("leader", raw))
			added = true
		}
	}
	for raw := range w.leaders {
		if _, ok := current[raw]; !ok {
			delete(w.leaders, raw)
			w.Logger.Info("untracking leader", zap.String("leader", raw))
		}
	}
	resub := w.streamResub
	w.mu.Unlock()

	// New leaders get no push notifications until the stream refreshes
	// its subscription set.
	if added && resub != nil {
		select {
		case resub <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run polls every tracked leader on a fixed interval until ctx is done.
// An in-flight sweep finishes before shutdown completes.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.Chain == nil {
		return nil
	}
	interval := w.Config.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.pollAll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watcher) pollAll(ctx context.Context) {
	w.mu.Lock()
	snapshot := make([]*trackedLeader, 0, len(w.leaders))
	for _, l := range w.leaders {
		snapshot = append(snapshot, l)
	}
	w.mu.Unlock()

	for _, l := range snapshot {
		if ctx.Err() != nil {
			return
		}
		// One leader's failure never blocks the others or moves their
		// sequence state.
		if err := w.pollLeader(ctx, l); err != nil {
			w.Logger.Warn("leader poll failed",
				zap.String("leader", l.Raw),
				zap.Error(err),
			)
		}
	}
}

// PollAccount triggers an immediate poll of one tracked leader by raw
// address. Used by the stream fast path; unknown accounts are ignored.
func (w *Watcher) PollAccount(ctx context.Context, raw string) {
	w.mu.Lock()
	l, ok := w.leaders[raw]
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := w.pollLeader(ctx, l); err != nil {
		w.Logger.Warn("leader poll failed",
			zap.String("leader", l.Raw),
			zap.Error(err),
		)
	}
}

func (w *Watcher) pollLeader(ctx context.Context, l *trackedLeader) error {
	// Concurrent polls of the same leader would both read the old cursor
	// and emit the same trade twice.
	l.mu.Lock()
	defer l.mu.Unlock()

	pageSize := w.Config.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	events, err := w.Chain.AccountEvents(ctx, l.Raw, pageSize)
	if err != nil {
		return err
	}

	if !l.seeded {
		// First fetch only positions the cursor; history is not replayed.
		for _, ev := range events {
			if !ev.InProgress && ev.Lt > l.lastSeq {
				l.lastSeq = ev.Lt
			}
		}
		l.seeded = true
		return nil
	}

	// The indexer returns newest first; handle oldest first so signals
	// for one leader keep non-decreasing sequence order.
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Lt <= l.lastSeq {
			continue
		}
		if ev.InProgress {
			// Do not advance past an unfinished trace; it is re-read
			// once settled.
			break
		}
		if sig, ok := w.extractSignal(ev, l.Raw); ok {
			if _, err := w.Sink.Ingest(ctx, sig, nil); err != nil {
				w.Logger.Error("signal ingestion failed",
					zap.String("leader", l.Raw),
					zap.Uint64("seq", ev.Lt),
					zap.Error(err),
				)
			}
		}
		// Advance even when the event was not a trade, so noise is
		// never re-examined.
		l.lastSeq = ev.Lt
	}
	return nil
}

// extractSignal pairs a jetton transfer with a same-event native transfer
// to classify the trade. Events without both legs, or without a
// recognized venue memo, are not trades.
func (w *Watcher) extractSignal(ev tonapi.AccountEvent, leaderRaw string) (models.Signal, bool) {
	var jt *tonapi.JettonTransferAction
	var tt *tonapi.TonTransferAction
	for i := range ev.Actions {
		a := &ev.Actions[i]
		if a.Status != "" && a.Status != "ok" {
			continue
		}
		if jt == nil && a.JettonTransfer != nil {
			jt = a.JettonTransfer
		}
		if tt == nil && a.TonTransfer != nil {
			tt = a.TonTransfer
		}
	}
	if jt == nil || tt == nil {
		return models.Signal{}, false
	}

	venue, ok := models.MatchPlatform(jt.Comment)
	if !ok {
		venue, ok = models.MatchPlatform(tt.Comment)
	}
	if !ok {
		return models.Signal{}, false
	}

	jtSender, err := ton.ParseAddress(jt.Sender.Address)
	if err != nil {
		return models.Signal{}, false
	}
	jtRecipient, err := ton.ParseAddress(jt.Recipient.Address)
	if err != nil {
		return models.Signal{}, false
	}

	var direction string
	switch leaderRaw {
	case jtSender.Raw():
		direction = models.DirectionSell
	case jtRecipient.Raw():
		direction = models.DirectionBuy
	default:
		return models.Signal{}, false
	}

	if tt.Amount <= 0 {
		return models.Signal{}, false
	}

	return models.Signal{
		ID:            uuid.New(),
		LeaderAddress: leaderRaw,
		Direction:     direction,
		TokenAddress:  jt.Jetton.Address,
		TonAmount:     ton.FromNano(big.NewInt(tt.Amount)),
		Platform:      venue,
		Seq:           ev.Lt,
	}, true
}

// AccountStream is the push notification feed for subscribed accounts.
type AccountStream interface {
	Connect(ctx context.Context) error
	Close(status websocket.StatusCode, reason string) error
	SubscribeAccounts(ctx context.Context, accounts []string) error
	Read(ctx context.Context) (*tonapi.AccountTxNotification, error)
}

// RunStream consumes account transaction pushes and turns each one into
// an immediate poll of the affected leader. The interval poll remains
// the source of truth; the stream only shortens latency.
func (w *Watcher) RunStream(ctx context.Context, stream AccountStream) error {
	if w == nil || stream == nil {
		return nil
	}
	w.mu.Lock()
	if w.streamResub == nil {
		w.streamResub = make(chan struct{}, 1)
	}
	w.mu.Unlock()
	for {
		if err := w.streamOnce(ctx, stream); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Logger.Warn("account stream dropped, reconnecting", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (w *Watcher) trackedAccounts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	accounts := make([]string, 0, len(w.leaders))
	for raw := range w.leaders {
		accounts = append(accounts, raw)
	}
	return accounts
}

func (w *Watcher) streamOnce(ctx context.Context, stream AccountStream) error {
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	defer stream.Close(websocket.StatusNormalClosure, "shutdown")

	if err := stream.SubscribeAccounts(ctx, w.trackedAccounts()); err != nil {
		return err
	}

	// Leaders tracked after connect still need push coverage; refresh
	// the subscription set whenever RefreshSources grows it.
	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case <-w.streamResub:
				if err := stream.SubscribeAccounts(subCtx, w.trackedAccounts()); err != nil {
					w.Logger.Warn("stream resubscribe failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		note, err := stream.Read(ctx)
		if err != nil {
			return err
		}
		if note == nil {
			continue
		}
		w.PollAccount(ctx, note.AccountID)
	}
}
