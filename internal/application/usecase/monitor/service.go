package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"
	domainsvc "arbwatch/internal/domain/service"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoFeeds    = errors.New("monitor: primary and secondary feeds are required")
	ErrNoSink     = errors.New("monitor: sink is required")
	ErrFeedClosed = errors.New("monitor: feed closed")

	errStaleFeed = errors.New("stale feed")
)

type ServiceDeps struct {
	Primary   BookFeed
	Secondary BookFeed
	Pair      domain.Pair
	Threshold float64

	// 0 = 无限等待
	CycleTimeout time.Duration
	WriteTimeout time.Duration
	Color        bool

	Alerts Alerter
	Sink   port.Sink
	Repo   port.Repository
}

type Service struct {
	deps    ServiceDeps
	st      *Store
	fmt     *Formatter
	markets domainsvc.Markets

	mu      sync.RWMutex
	status  Status
	cycles  uint64
	skipped uint64
}

// cycle holds what arrived from each slot before the join completed.
type cycle struct {
	updates [2]port.BookUpdate
	got     [2]bool
}

var slots = [2]domain.Slot{domain.SlotPrimary, domain.SlotSecondary}

func NewService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		deps.Repo = NewNoopRepo()
	}
	markets := domainsvc.Markets{Primary: feedName(deps.Primary), Secondary: feedName(deps.Secondary)}
	s := &Service{
		deps:    deps,
		st:      NewStore(),
		markets: markets,
		fmt: &Formatter{
			Pair:      deps.Pair,
			Primary:   markets.Primary,
			Secondary: markets.Secondary,
			Threshold: deps.Threshold,
			Color:     deps.Color,
		},
	}
	s.status = Status{
		Symbol:    deps.Pair.String(),
		Primary:   markets.Primary,
		Secondary: markets.Secondary,
		Phase:     PhaseWaiting.String(),
	}
	return s
}

func feedName(f BookFeed) string {
	if f == nil {
		return ""
	}
	return f.Name()
}

// Status returns the view published by the last cycle.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run subscribes both feeds and evaluates one cycle per joined pair of
// updates until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Primary == nil || s.deps.Secondary == nil {
		return ErrNoFeeds
	}
	if s.deps.Sink == nil {
		return ErrNoSink
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	var boxes [2]chan port.BookUpdate

	for i, feed := range []BookFeed{s.deps.Primary, s.deps.Secondary} {
		ch, err := feed.Subscribe(gctx, s.deps.Pair)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", feed.Name(), err)
		}
		box := make(chan port.BookUpdate, 1)
		boxes[i] = box
		g.Go(func() error {
			pump(gctx, ch, box)
			return nil
		})
		log.Info().Str("feed", feed.Name()).Str("symbol", s.deps.Pair.String()).Msg("feed started")
	}

	g.Go(func() error {
		return s.loop(gctx, boxes)
	})

	return g.Wait()
}

func (s *Service) loop(ctx context.Context, boxes [2]chan port.BookUpdate) error {
	_ = s.deps.Sink.WriteReport(time.Now(), s.fmt.Render(s.st.Snapshot(), model.Evaluation{}, PhaseWaiting))

	for {
		c, err := s.await(ctx, boxes)
		if ctx.Err() != nil {
			_ = s.deps.Sink.NewLine()
			return ctx.Err()
		}
		if errors.Is(err, ErrFeedClosed) {
			return err
		}
		s.handle(ctx, c, err)
	}
}

// await blocks until each mailbox has delivered one update, the cycle
// deadline passes, or ctx is done.
func (s *Service) await(ctx context.Context, boxes [2]chan port.BookUpdate) (cycle, error) {
	var c cycle

	var timeout <-chan time.Time
	if s.deps.CycleTimeout > 0 {
		timer := time.NewTimer(s.deps.CycleTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	in := [2]<-chan port.BookUpdate{boxes[0], boxes[1]}
	for !(c.got[0] && c.got[1]) {
		select {
		case <-ctx.Done():
			return c, ctx.Err()
		case u, ok := <-in[0]:
			if !ok {
				return c, fmt.Errorf("%w: %s", ErrFeedClosed, s.markets.Primary)
			}
			c.updates[0], c.got[0] = u, true
			in[0] = nil
		case u, ok := <-in[1]:
			if !ok {
				return c, fmt.Errorf("%w: %s", ErrFeedClosed, s.markets.Secondary)
			}
			c.updates[1], c.got[1] = u, true
			in[1] = nil
		case <-timeout:
			return c, errStaleFeed
		}
	}
	return c, nil
}

func (s *Service) handle(ctx context.Context, c cycle, waitErr error) {
	now := time.Now()

	feedErr := false
	for i, slot := range slots {
		if !c.got[i] {
			continue
		}
		u := c.updates[i]
		if u.Err != nil {
			feedErr = true
			log.Warn().Err(u.Err).Str("market", s.marketName(slot)).Msg("feed error, cycle skipped")
			// a book conflated into the error is still valid data
			if !u.Book.Empty() {
				s.store(slot, u.Book)
			}
			continue
		}
		s.store(slot, u.Book)
	}

	if waitErr != nil {
		var stale []string
		for i, slot := range slots {
			if !c.got[i] {
				stale = append(stale, s.marketName(slot))
			}
		}
		log.Warn().Strs("stale", stale).Dur("timeout", s.deps.CycleTimeout).Msg("no update within cycle deadline, cycle skipped")
		s.skip(now)
		return
	}
	if feedErr {
		s.skip(now)
		return
	}

	snap := s.st.Snapshot()
	phase := s.st.Phase()
	ev := domainsvc.Evaluate(snap, s.markets, s.deps.Threshold)

	if ev.Status == model.StatusMalformed {
		log.Debug().
			Interface("primary", snap.Primary).
			Interface("secondary", snap.Secondary).
			Msg("malformed quote, evaluation skipped")
	}

	if s.deps.Alerts != nil {
		for _, opp := range ev.Opportunities() {
			s.deps.Alerts.Submit(opp)
		}
	}

	if err := s.deps.Sink.WriteReport(now, s.fmt.Render(snap, ev, phase)); err != nil {
		log.Warn().Err(err).Msg("write report failed")
	}

	s.mirror(ctx, c, snap)
	s.publish(now, snap, ev, phase)
}

func (s *Service) store(slot domain.Slot, book domain.TopOfBook) {
	if s.st.Update(slot, book) {
		log.Info().
			Str("primary", s.markets.Primary).
			Str("secondary", s.markets.Secondary).
			Str("symbol", s.deps.Pair.String()).
			Msg("both order books received, monitoring active")
	}
}

// mirror upserts the books that changed this cycle.
func (s *Service) mirror(ctx context.Context, c cycle, snap domain.MarketState) {
	if s.deps.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.WriteTimeout)
		defer cancel()
	}

	symbol := s.deps.Pair.String()
	for i, slot := range slots {
		book := snap.Book(slot)
		if !c.got[i] || book.Empty() {
			continue
		}
		if err := s.deps.Repo.UpsertBook(ctx, s.marketName(slot), symbol, book); err != nil {
			log.Warn().Err(err).Str("market", s.marketName(slot)).Msg("mirror book failed")
		}
	}
}

func (s *Service) publish(now time.Time, snap domain.MarketState, ev model.Evaluation, phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.status.Phase = phase.String()
	s.status.Books = snap
	s.status.Evaluation = ev
	s.status.Cycles = s.cycles
	s.status.SkippedCycles = s.skipped
	s.status.LastCycleAt = now
}

func (s *Service) skip(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
	s.status.Phase = s.st.Phase().String()
	s.status.Books = s.st.Snapshot()
	s.status.SkippedCycles = s.skipped
	s.status.LastCycleAt = now
}

func (s *Service) marketName(slot domain.Slot) string {
	if slot == domain.SlotSecondary {
		return s.markets.Secondary
	}
	return s.markets.Primary
}

// pump forwards updates from in to a one-slot mailbox. An update the loop
// has not taken yet is replaced; its sides are merged into the newer book.
func pump(ctx context.Context, in <-chan port.BookUpdate, box chan port.BookUpdate) {
	defer close(box)
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in:
			if !ok {
				return
			}
			if u.Err == nil {
				clean, dropped := u.Book.DropInvalid()
				if dropped {
					log.Debug().
						Str("market", u.Market).
						Interface("book", u.Book).
						Msg("invalid price level discarded")
				}
				u.Book = clean
			}
			offer(box, u)
		}
	}
}

// offer must only be called by the mailbox's single producer.
func offer(box chan port.BookUpdate, u port.BookUpdate) {
	select {
	case box <- u:
		return
	default:
	}

	// an error keeps the unconsumed book; a later book drops the old error
	select {
	case old := <-box:
		u.Book = old.Book.Merge(u.Book)
	default:
	}
	box <- u
}
