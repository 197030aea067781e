package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/namewasntdrown/ton-bot-sub000/internal/client/tonapi"
	"github.com/namewasntdrown/ton-bot-sub000/internal/config"
	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
)

type stubEvents struct {
	mu sync.Mutex
	// events are newest first, as the indexer returns them.
	events []tonapi.AccountEvent
	calls  int
}

func (s *stubEvents) AccountEvents(ctx context.Context, account string, limit int) ([]tonapi.AccountEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]tonapi.AccountEvent, len(s.events))
	copy(out, s.events)
	return out, nil
}

func tradeEvent(lt uint64, leaderSendsJetton bool, comment string) tonapi.AccountEvent {
	counterparty := "0:" + strings.Repeat("cc", 32)
	jt := &tonapi.JettonTransferAction{
		Amount:  "1000000",
		Comment: comment,
		Jetton:  tonapi.JettonPreview{Address: testToken, Decimals: 9},
	}
	tt := &tonapi.TonTransferAction{Amount: 2_000_000_000}
	if leaderSendsJetton {
		jt.Sender = tonapi.AccountRef{Address: testLeader}
		jt.Recipient = tonapi.AccountRef{Address: counterparty}
		tt.Sender = tonapi.AccountRef{Address: counterparty}
		tt.Recipient = tonapi.AccountRef{Address: testLeader}
	} else {
		jt.Sender = tonapi.AccountRef{Address: counterparty}
		jt.Recipient = tonapi.AccountRef{Address: testLeader}
		tt.Sender = tonapi.AccountRef{Address: testLeader}
		tt.Recipient = tonapi.AccountRef{Address: counterparty}
	}
	return tonapi.AccountEvent{
		EventID: "ev",
		Lt:      lt,
		Actions: []tonapi.Action{
			{Type: "JettonTransfer", Status: "ok", JettonTransfer: jt},
			{Type: "TonTransfer", Status: "ok", TonTransfer: tt},
		},
	}
}

func newTestWatcher(repo *stubRepo, chain ChainEvents, sink SignalSink) *Watcher {
	w := &Watcher{
		Repo:   repo,
		Chain:  chain,
		Sink:   sink,
		Logger: zap.NewNop(),
		Config: config.WatcherConfig{PageSize: 20},
	}
	return w
}

func runningSub(leader string) models.Subscription {
	return models.Subscription{
		ID:            1,
		UserID:        1,
		LeaderAddress: &leader,
		SizingMode:    models.SizingSmart,
		CopyBuy:       true,
		CopySell:      true,
		Status:        models.SubscriptionRunning,
	}
}

func TestWatcher_BootstrapSkipsHistory(t *testing.T) {
	repo := newStubRepo()
	repo.subs = append(repo.subs, runningSub(testLeader))

	chain := &stubEvents{events: []tonapi.AccountEvent{
		tradeEvent(30, true, "dedust swap"),
		tradeEvent(20, true, "dedust swap"),
	}}
	sink := &stubSink{}
	w := newTestWatcher(repo, chain, sink)

	ctx := context.Background()
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	w.pollAll(ctx)
	if len(sink.signals) != 0 {
		t.Fatalf("bootstrap must not replay history, got %d signals", len(sink.signals))
	}

	// New activity after the cursor is above lt 30.
	chain.events = append([]tonapi.AccountEvent{tradeEvent(40, true, "dedust swap")}, chain.events...)
	w.pollAll(ctx)
	if len(sink.signals) != 1 {
		t.Fatalf("signals=%d want=1", len(sink.signals))
	}
	if sink.signals[0].Seq != 40 {
		t.Fatalf("seq=%d want=40", sink.signals[0].Seq)
	}
}

func TestWatcher_DirectionClassification(t *testing.T) {
	repo := newStubRepo()
	repo.subs = append(repo.subs, runningSub(testLeader))

	chain := &stubEvents{events: []tonapi.AccountEvent{tradeEvent(10, true, "dedust swap")}}
	sink := &stubSink{}
	w := newTestWatcher(repo, chain, sink)

	ctx := context.Background()
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	w.pollAll(ctx) // seeds the cursor at lt 10

	// Leader sends jettons away: a sell.
	chain.events = []tonapi.AccountEvent{tradeEvent(11, true, "via dedust")}
	w.pollAll(ctx)
	// Leader receives jettons: a buy.
	chain.events = []tonapi.AccountEvent{tradeEvent(12, false, "ston.fi route")}
	w.pollAll(ctx)

	if len(sink.signals) != 2 {
		t.Fatalf("signals=%d want=2", len(sink.signals))
	}
	if sink.signals[0].Direction != models.DirectionSell || sink.signals[0].Platform != models.PlatformDedust {
		t.Fatalf("first signal=%+v want sell/dedust", sink.signals[0])
	}
	if sink.signals[1].Direction != models.DirectionBuy || sink.signals[1].Platform != models.PlatformStonfi {
		t.Fatalf("second signal=%+v want buy/stonfi", sink.signals[1])
	}
	if !sink.signals[0].TonAmount.Equal(sink.signals[1].TonAmount) {
		t.Fatal("both signals carry the paired native amount")
	}
}

func TestWatcher_NonTradesIgnoredButAdvance(t *testing.T) {
	repo := newStubRepo()
	repo.subs = append(repo.subs, runningSub(testLeader))

	chain := &stubEvents{events: []tonapi.AccountEvent{tradeEvent(10, true, "dedust swap")}}
	sink := &stubSink{}
	w := newTestWatcher(repo, chain, sink)

	ctx := context.Background()
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	w.pollAll(ctx)

	// A jetton transfer with no paired native leg, then one with no venue
	// memo. Neither is a trade, but the cursor still advances.
	noCounter := tradeEvent(11, true, "dedust swap")
	noCounter.Actions = noCounter.Actions[:1]
	noVenue := tradeEvent(12, true, "gift for you")
	chain.events = []tonapi.AccountEvent{noVenue, noCounter}
	w.pollAll(ctx)
	if len(sink.signals) != 0 {
		t.Fatalf("signals=%d want=0", len(sink.signals))
	}

	// A stale duplicate of lt 12 must not re-emit once seen.
	chain.events = []tonapi.AccountEvent{tradeEvent(12, true, "dedust swap")}
	w.pollAll(ctx)
	if len(sink.signals) != 0 {
		t.Fatalf("stale event re-emitted, signals=%d", len(sink.signals))
	}
}

func TestWatcher_InProgressEventHeldBack(t *testing.T) {
	repo := newStubRepo()
	repo.subs = append(repo.subs, runningSub(testLeader))

	chain := &stubEvents{events: []tonapi.AccountEvent{tradeEvent(10, true, "dedust swap")}}
	sink := &stubSink{}
	w := newTestWatcher(repo, chain, sink)

	ctx := context.Background()
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	w.pollAll(ctx)

	pending := tradeEvent(11, true, "dedust swap")
	pending.InProgress = true
	chain.events = []tonapi.AccountEvent{pending, tradeEvent(10, true, "dedust swap")}
	w.pollAll(ctx)
	if len(sink.signals) != 0 {
		t.Fatal("unfinished trace must not emit")
	}

	// Once settled the same lt is picked up.
	chain.events = []tonapi.AccountEvent{tradeEvent(11, true, "dedust swap")}
	w.pollAll(ctx)
	if len(sink.signals) != 1 || sink.signals[0].Seq != 11 {
		t.Fatalf("signals=%+v want one at seq 11", sink.signals)
	}
}

func TestWatcher_RefreshSources(t *testing.T) {
	repo := newStubRepo()
	good := runningSub(testLeader)
	bad := runningSub("not-an-address")
	bad.ID = 2
	repo.subs = append(repo.subs, good, bad)

	w := newTestWatcher(repo, &stubEvents{}, &stubSink{})
	ctx := context.Background()
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(w.leaders) != 1 {
		t.Fatalf("leaders=%d want=1, unparsable addresses are skipped", len(w.leaders))
	}

	// Stopping the last running profile untracks the leader.
	repo.subs[0].Status = models.SubscriptionIdle
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(w.leaders) != 0 {
		t.Fatalf("leaders=%d want=0 after stop", len(w.leaders))
	}
}

// The interval sweep and the stream fast path may hit the same leader at
// the same moment; the trade must still come through exactly once.
func TestWatcher_ConcurrentPollsEmitOnce(t *testing.T) {
	repo := newStubRepo()
	repo.subs = append(repo.subs, runningSub(testLeader))

	chain := &stubEvents{events: []tonapi.AccountEvent{tradeEvent(10, true, "dedust swap")}}
	sink := &stubSink{}
	w := newTestWatcher(repo, chain, sink)

	ctx := context.Background()
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// First sweep just positions the cursor at lt 10.
	w.pollAll(ctx)

	chain.mu.Lock()
	chain.events = append([]tonapi.AccountEvent{tradeEvent(11, true, "dedust swap")}, chain.events...)
	chain.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.PollAccount(ctx, testLeader)
		}()
	}
	wg.Wait()

	if len(sink.signals) != 1 {
		t.Fatalf("signals=%d want=1", len(sink.signals))
	}
	if sink.signals[0].Seq != 11 {
		t.Fatalf("seq=%d want=11", sink.signals[0].Seq)
	}
}

type stubStream struct {
	mu   sync.Mutex
	subs [][]string
	recv chan *tonapi.AccountTxNotification
}

func newStubStream() *stubStream {
	return &stubStream{recv: make(chan *tonapi.AccountTxNotification)}
}

func (s *stubStream) Connect(ctx context.Context) error { return nil }

func (s *stubStream) Close(code websocket.StatusCode, reason string) error { return nil }

func (s *stubStream) SubscribeAccounts(ctx context.Context, accounts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(accounts))
	copy(cp, accounts)
	s.subs = append(s.subs, cp)
	return nil
}

func (s *stubStream) Read(ctx context.Context) (*tonapi.AccountTxNotification, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case n := <-s.recv:
		return n, nil
	}
}

func (s *stubStream) subscribeCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.subs))
	copy(out, s.subs)
	return out
}

// Leaders tracked after the stream connects still get push coverage.
func TestWatcher_StreamResubscribesNewLeaders(t *testing.T) {
	repo := newStubRepo()
	repo.subs = append(repo.subs, runningSub(testLeader))

	chain := &stubEvents{}
	sink := &stubSink{}
	w := newTestWatcher(repo, chain, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	stream := newStubStream()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.RunStream(ctx, stream)
	}()

	waitFor(t, func() bool { return len(stream.subscribeCalls()) == 1 })

	second := "0:" + strings.Repeat("dd", 32)
	sub := runningSub(second)
	sub.ID = 2
	repo.subs = append(repo.subs, sub)
	if err := w.RefreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	waitFor(t, func() bool { return len(stream.subscribeCalls()) == 2 })
	last := stream.subscribeCalls()[1]
	found := false
	for _, a := range last {
		if a == second {
			found = true
		}
	}
	if !found {
		t.Fatalf("resubscribe set %v missing %s", last, second)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream loop did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
