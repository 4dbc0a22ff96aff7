package monitor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type fakeFeed struct {
	name string
	ch   chan port.BookUpdate
}

func newFakeFeed(name string) *fakeFeed {
	return &fakeFeed{name: name, ch: make(chan port.BookUpdate)}
}

func (f *fakeFeed) Name() string { return f.name }

func (f *fakeFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	return f.ch, nil
}

func (f *fakeFeed) send(t *testing.T, u port.BookUpdate) {
	t.Helper()
	u.Market = f.name
	select {
	case f.ch <- u:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: send blocked", f.name)
	}
}

type fakeSink struct {
	mu      sync.Mutex
	reports []string
}

func (s *fakeSink) WriteReport(_ time.Time, report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *fakeSink) NewLine() error { return nil }

func (s *fakeSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return ""
	}
	return s.reports[len(s.reports)-1]
}

type fakeAlerter struct {
	mu   sync.Mutex
	opps []model.Opportunity
}

func (a *fakeAlerter) Submit(opp model.Opportunity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opps = append(a.opps, opp)
	return true
}

func (a *fakeAlerter) submitted() []model.Opportunity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Opportunity(nil), a.opps...)
}

type recordingRepo struct {
	noopRepo
	mu      sync.Mutex
	upserts map[string]domain.TopOfBook
}

func (r *recordingRepo) UpsertBook(_ context.Context, market, symbol string, book domain.TopOfBook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upserts == nil {
		r.upserts = make(map[string]domain.TopOfBook)
	}
	r.upserts[market+":"+symbol] = book
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	svc       *Service
	primary   *fakeFeed
	secondary *fakeFeed
	sink      *fakeSink
	alerts    *fakeAlerter
	repo      *recordingRepo
	cancel    context.CancelFunc
	done      chan error
}

func startHarness(t *testing.T, cycleTimeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		primary:   newFakeFeed("binance"),
		secondary: newFakeFeed("bybit"),
		sink:      &fakeSink{},
		alerts:    &fakeAlerter{},
		repo:      &recordingRepo{},
		done:      make(chan error, 1),
	}
	h.svc = NewService(ServiceDeps{
		Primary:      h.primary,
		Secondary:    h.secondary,
		Pair:         domain.Pair{Base: "BTC", Quote: "USDT"},
		Threshold:    0.005,
		CycleTimeout: cycleTimeout,
		WriteTimeout: time.Second,
		Alerts:       h.alerts,
		Sink:         h.sink,
		Repo:         h.repo,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("service did not stop")
		}
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func fullBook(bid, ask float64) domain.TopOfBook {
	return domain.NewTopOfBook(domain.Level{Price: bid, Qty: 1}, domain.Level{Price: ask, Qty: 1}, 1)
}

func TestServiceEmitsOpportunity(t *testing.T) {
	h := startHarness(t, 0)

	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 101)})
	h.secondary.send(t, port.BookUpdate{Book: fullBook(103, 104)})

	waitFor(t, "first cycle", func() bool { return h.svc.Status().Cycles == 1 })

	opps := h.alerts.submitted()
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if opps[0].Direction != model.BuyPrimarySellSecondary || opps[0].ProjectedProfit != 2 {
		t.Errorf("unexpected opportunity %+v", opps[0])
	}

	st := h.svc.Status()
	if st.Phase != "active" {
		t.Errorf("phase want active got %s", st.Phase)
	}
	if st.Evaluation.Status != model.StatusReady {
		t.Errorf("evaluation want ready got %s", st.Evaluation.Status)
	}
	if !strings.Contains(h.sink.last(), "binance -> bybit Gap: 1.98%") {
		t.Errorf("report missing gap line:\n%s", h.sink.last())
	}

	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	if _, ok := h.repo.upserts["bybit:BTC/USDT"]; !ok {
		t.Errorf("secondary book not mirrored: %v", h.repo.upserts)
	}
}

func TestServiceWaitsForBothBooks(t *testing.T) {
	h := startHarness(t, 0)

	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 101)})
	h.secondary.send(t, port.BookUpdate{Book: domain.TopOfBook{
		Bid: domain.Level{Price: 103, Qty: 1}, HasBid: true, Ts: 1,
	}})

	waitFor(t, "first cycle", func() bool { return h.svc.Status().Cycles == 1 })

	if st := h.svc.Status(); st.Phase != "waiting" {
		t.Errorf("phase want waiting got %s", st.Phase)
	}
	if n := len(h.alerts.submitted()); n != 0 {
		t.Errorf("no alert expected while waiting, got %d", n)
	}
	if !strings.HasPrefix(h.sink.last(), "Waiting for bybit") {
		t.Errorf("unexpected report %q", h.sink.last())
	}
}

func TestServiceZeroPriceTreatedAsAbsent(t *testing.T) {
	h := startHarness(t, 0)

	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 0)})
	h.secondary.send(t, port.BookUpdate{Book: fullBook(103, 104)})

	waitFor(t, "first cycle", func() bool { return h.svc.Status().Cycles == 1 })

	st := h.svc.Status()
	if st.Phase != "waiting" {
		t.Errorf("a zero ask must not activate monitoring, phase=%s", st.Phase)
	}
	if st.Books.Primary.HasAsk {
		t.Errorf("zero ask should be discarded, got %+v", st.Books.Primary)
	}
	if st.Evaluation.Status != model.StatusIncomplete {
		t.Errorf("evaluation want incomplete got %s", st.Evaluation.Status)
	}
	if n := len(h.alerts.submitted()); n != 0 {
		t.Errorf("incomplete cycle must not alert, got %d", n)
	}
}

func TestServiceZeroPriceKeepsLastValidLevel(t *testing.T) {
	h := startHarness(t, 0)

	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 101)})
	h.secondary.send(t, port.BookUpdate{Book: fullBook(103, 104)})
	waitFor(t, "first cycle", func() bool { return h.svc.Status().Cycles == 1 })

	h.primary.send(t, port.BookUpdate{Book: fullBook(0, 101)})
	h.secondary.send(t, port.BookUpdate{Book: fullBook(103, 104)})
	waitFor(t, "second cycle", func() bool { return h.svc.Status().Cycles == 2 })

	st := h.svc.Status()
	if st.Books.Primary.Bid.Price != 100 {
		t.Errorf("previous bid should be kept, got %+v", st.Books.Primary.Bid)
	}
	if st.Evaluation.Status != model.StatusReady {
		t.Errorf("evaluation want ready got %s", st.Evaluation.Status)
	}
	if n := len(h.alerts.submitted()); n != 2 {
		t.Errorf("expected an alert on both cycles, got %d", n)
	}
}

func TestServiceFeedErrorSkipsCycle(t *testing.T) {
	h := startHarness(t, 0)

	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 101)})
	h.secondary.send(t, port.BookUpdate{Err: errors.New("decode bookTicker: unexpected EOF")})

	waitFor(t, "skipped cycle", func() bool { return h.svc.Status().SkippedCycles == 1 })

	st := h.svc.Status()
	if st.Cycles != 0 {
		t.Errorf("errored cycle must not be evaluated, cycles=%d", st.Cycles)
	}
	if !st.Books.Primary.Complete() {
		t.Error("valid update from the same cycle should still be stored")
	}

	// the loop keeps going after the error
	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 101)})
	h.secondary.send(t, port.BookUpdate{Book: fullBook(103, 104)})
	waitFor(t, "next cycle", func() bool { return h.svc.Status().Cycles == 1 })
	if n := len(h.alerts.submitted()); n != 1 {
		t.Errorf("expected 1 alert after recovery, got %d", n)
	}
}

func TestServiceCycleDeadlineNamesStaleFeed(t *testing.T) {
	buf := &syncBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = prev })

	h := startHarness(t, 50*time.Millisecond)

	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 101)})

	waitFor(t, "stale cycle", func() bool { return h.svc.Status().SkippedCycles >= 1 })

	out := buf.String()
	if !strings.Contains(out, "cycle deadline") || !strings.Contains(out, `"stale":["bybit"]`) {
		t.Errorf("stale warning should name bybit, log:\n%s", out)
	}
	if n := len(h.alerts.submitted()); n != 0 {
		t.Errorf("stale cycle must not alert, got %d", n)
	}
}

func TestServiceStopsOnCancel(t *testing.T) {
	h := startHarness(t, 0)
	h.cancel()

	select {
	case err := <-h.done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("want context.Canceled, got %v", err)
		}
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServiceFeedClosed(t *testing.T) {
	primary := newFakeFeed("binance")
	secondary := newFakeFeed("bybit")
	svc := NewService(ServiceDeps{
		Primary:   primary,
		Secondary: secondary,
		Pair:      domain.Pair{Base: "BTC", Quote: "USDT"},
		Sink:      &fakeSink{},
	})

	close(secondary.ch)
	err := svc.Run(context.Background())
	if !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("want ErrFeedClosed, got %v", err)
	}
}

func TestServiceRequiresFeeds(t *testing.T) {
	svc := NewService(ServiceDeps{Sink: &fakeSink{}})
	if err := svc.Run(context.Background()); !errors.Is(err, ErrNoFeeds) {
		t.Fatalf("want ErrNoFeeds, got %v", err)
	}
}

func TestOfferConflatesAndMerges(t *testing.T) {
	box := make(chan port.BookUpdate, 1)

	offer(box, port.BookUpdate{Book: domain.TopOfBook{Bid: domain.Level{Price: 100, Qty: 1}, HasBid: true, Ts: 1}})
	offer(box, port.BookUpdate{Book: domain.TopOfBook{Ask: domain.Level{Price: 101, Qty: 2}, HasAsk: true, Ts: 2}})

	u := <-box
	if !u.Book.Complete() || u.Book.Bid.Price != 100 || u.Book.Ask.Price != 101 || u.Book.Ts != 2 {
		t.Errorf("unexpected merged update %+v", u.Book)
	}
	select {
	case extra := <-box:
		t.Errorf("mailbox should hold one update, found %+v", extra)
	default:
	}
}

func TestOfferKeepsBookBehindError(t *testing.T) {
	box := make(chan port.BookUpdate, 1)

	offer(box, port.BookUpdate{Book: fullBook(100, 101)})
	offer(box, port.BookUpdate{Err: errors.New("decode: unexpected EOF")})

	u := <-box
	if u.Err == nil {
		t.Fatal("error should be delivered")
	}
	if !u.Book.Complete() || u.Book.Bid.Price != 100 {
		t.Errorf("unconsumed book should travel with the error, got %+v", u.Book)
	}
}

func TestServiceStoresBookConflatedWithError(t *testing.T) {
	h := startHarness(t, 0)

	h.primary.send(t, port.BookUpdate{Book: fullBook(100, 101), Err: errors.New("decode: unexpected EOF")})
	h.secondary.send(t, port.BookUpdate{Book: fullBook(103, 104)})

	waitFor(t, "skipped cycle", func() bool { return h.svc.Status().SkippedCycles == 1 })

	st := h.svc.Status()
	if !st.Books.Primary.Complete() {
		t.Errorf("book carried by the error should be stored, got %+v", st.Books.Primary)
	}
	if n := len(h.alerts.submitted()); n != 0 {
		t.Errorf("errored cycle must not alert, got %d", n)
	}
}
