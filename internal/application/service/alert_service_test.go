package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message)
	return f.err
}

func (f *fakeDispatcher) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

type fakeRepo struct {
	mu     sync.Mutex
	events []port.OpportunityEvent
}

func (r *fakeRepo) UpsertBook(context.Context, string, string, domain.TopOfBook) error { return nil }
func (r *fakeRepo) PublishOpportunity(_ context.Context, ev port.OpportunityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
func (r *fakeRepo) Close() error { return nil }

var btcUSDT = domain.Pair{Base: "BTC", Quote: "USDT"}

func sampleOpp(d model.Direction) model.Opportunity {
	return model.Opportunity{
		Direction:       d,
		BuyMarket:       "binance",
		SellMarket:      "bybit",
		BuyPrice:        101,
		SellPrice:       103,
		SpreadRatio:     2.0 / 101.0,
		TradableQty:     1,
		ProjectedProfit: 2,
	}
}

func TestRenderAlert(t *testing.T) {
	got := RenderAlert(btcUSDT, sampleOpp(model.BuyPrimarySellSecondary))
	want := "🔥 Arbitrage BTC: Buy binance @ 101, Sell bybit @ 103\nSpread: 1.98% => 1 BTC => 2.0000 USDT"
	if got != want {
		t.Fatalf("message mismatch\nwant %q\ngot  %q", want, got)
	}
}

func TestAlertServiceDeliversAndPublishes(t *testing.T) {
	disp := &fakeDispatcher{}
	repo := &fakeRepo{}
	svc := NewAlertService(btcUSDT, disp, repo, AlertConfig{QueueSize: 4, Timeout: time.Second})
	svc.newID = func() string { return "id-1" }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()

	if !svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Fatal("submit should be accepted")
	}

	deadline := time.After(2 * time.Second)
	for len(disp.messages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("alert was not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(repo.events))
	}
	if ev := repo.events[0]; ev.ID != "id-1" || ev.Symbol != "BTC/USDT" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestAlertServiceDeliveryFailureNotPublished(t *testing.T) {
	disp := &fakeDispatcher{err: errors.New("telegram down")}
	repo := &fakeRepo{}
	svc := NewAlertService(btcUSDT, disp, repo, AlertConfig{QueueSize: 4, DrainTimeout: time.Second})

	svc.Submit(sampleOpp(model.BuyPrimarySellSecondary))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("run returned %v", err)
	}

	if n := len(disp.messages()); n != 1 {
		t.Fatalf("expected one attempt, got %d", n)
	}
	if len(repo.events) != 0 {
		t.Error("failed delivery must not be published")
	}
}

func TestAlertServiceQueueFullDrops(t *testing.T) {
	svc := NewAlertService(btcUSDT, &fakeDispatcher{}, nil, AlertConfig{QueueSize: 1})

	if !svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Fatal("first submit should fit")
	}
	if svc.Submit(sampleOpp(model.BuySecondarySellPrimary)) {
		t.Fatal("second submit should be dropped on a full queue")
	}
}

func TestAlertServiceCooldown(t *testing.T) {
	svc := NewAlertService(btcUSDT, &fakeDispatcher{}, nil, AlertConfig{QueueSize: 8, Cooldown: time.Minute})

	if !svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Fatal("first alert should pass")
	}
	if svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Error("repeat inside cooldown should be suppressed")
	}
	if !svc.Submit(sampleOpp(model.BuySecondarySellPrimary)) {
		t.Error("other direction should pass")
	}
}

func TestAlertServiceDrainOnShutdown(t *testing.T) {
	disp := &fakeDispatcher{}
	svc := NewAlertService(btcUSDT, disp, nil, AlertConfig{QueueSize: 8, DrainTimeout: time.Second})

	for i := 0; i < 3; i++ {
		svc.Submit(sampleOpp(model.BuyPrimarySellSecondary))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = svc.Run(ctx)

	if n := len(disp.messages()); n != 3 {
		t.Fatalf("expected 3 drained alerts, got %d", n)
	}
}

func TestAlertServiceDroppedAlertDoesNotStartCooldown(t *testing.T) {
	disp := &fakeDispatcher{}
	svc := NewAlertService(btcUSDT, disp, nil, AlertConfig{QueueSize: 1, Cooldown: time.Minute, DrainTimeout: time.Second})

	if !svc.Submit(sampleOpp(model.BuySecondarySellPrimary)) {
		t.Fatal("first submit should fit")
	}
	if svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Fatal("second submit should be dropped on a full queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = svc.Run(ctx)

	if !svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Fatal("a dropped alert must not silence its direction")
	}
	_ = svc.Run(ctx)

	if n := len(disp.messages()); n != 2 {
		t.Fatalf("expected both directions delivered, got %d", n)
	}
	if svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Error("a delivered alert should start the cooldown")
	}
}

func TestAlertServiceFailedDeliveryDoesNotStartCooldown(t *testing.T) {
	disp := &fakeDispatcher{err: errors.New("telegram down")}
	svc := NewAlertService(btcUSDT, disp, nil, AlertConfig{QueueSize: 4, Cooldown: time.Minute, DrainTimeout: time.Second})

	svc.Submit(sampleOpp(model.BuyPrimarySellSecondary))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = svc.Run(ctx)

	if !svc.Submit(sampleOpp(model.BuyPrimarySellSecondary)) {
		t.Error("failed delivery must not silence its direction")
	}
}
