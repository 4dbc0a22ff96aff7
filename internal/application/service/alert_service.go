package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"
	domainsvc "arbwatch/internal/domain/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type AlertConfig struct {
	Cooldown     time.Duration
	Timeout      time.Duration
	QueueSize    int
	DrainTimeout time.Duration
}

// AlertService 告警服务：去重、排队、异步投递
// Submit never blocks; a single worker started by Run does the delivery.
type AlertService struct {
	pair       domain.Pair
	dispatcher port.Dispatcher
	repo       port.Repository
	dedup      *domainsvc.AlertDeduplicator

	timeout      time.Duration
	drainTimeout time.Duration
	queue        chan model.Opportunity

	newID func() string
	now   func() time.Time
}

func NewAlertService(pair domain.Pair, dispatcher port.Dispatcher, repo port.Repository, cfg AlertConfig) *AlertService {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &AlertService{
		pair:         pair,
		dispatcher:   dispatcher,
		repo:         repo,
		dedup:        domainsvc.NewAlertDeduplicator(cfg.Cooldown),
		timeout:      cfg.Timeout,
		drainTimeout: cfg.DrainTimeout,
		queue:        make(chan model.Opportunity, cfg.QueueSize),
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

// RenderAlert formats the notification text for one opportunity.
func RenderAlert(pair domain.Pair, o model.Opportunity) string {
	return fmt.Sprintf("🔥 Arbitrage %s: Buy %s @ %s, Sell %s @ %s\nSpread: %.2f%% => %s %s => %.4f %s",
		pair.Base,
		o.BuyMarket, strconv.FormatFloat(o.BuyPrice, 'f', -1, 64),
		o.SellMarket, strconv.FormatFloat(o.SellPrice, 'f', -1, 64),
		o.SpreadPercent(),
		strconv.FormatFloat(o.TradableQty, 'f', -1, 64), pair.Base,
		o.ProjectedProfit, pair.Quote)
}

// Submit queues opp for delivery. It returns false when the alert was
// suppressed by the cooldown or dropped because the queue is full.
func (s *AlertService) Submit(opp model.Opportunity) bool {
	if ok, reason := s.dedup.Reserve(opp.Direction); !ok {
		log.Debug().Str("direction", opp.Direction.String()).Msg("alert suppressed: " + reason)
		return false
	}

	select {
	case s.queue <- opp:
		return true
	default:
		s.dedup.Release(opp.Direction)
		log.Warn().
			Str("direction", opp.Direction.String()).
			Float64("spread", opp.SpreadRatio).
			Int("queue", cap(s.queue)).
			Msg("alert queue full, alert dropped")
		return false
	}
}

// Run delivers queued alerts until ctx is done, then drains what is left
// for at most the drain timeout.
func (s *AlertService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case opp := <-s.queue:
			s.deliver(ctx, opp)
		}
	}
}

func (s *AlertService) drain() {
	if len(s.queue) == 0 {
		return
	}
	if s.drainTimeout <= 0 {
		log.Warn().Int("pending", len(s.queue)).Msg("alert queue abandoned")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			log.Warn().Int("pending", len(s.queue)).Msg("alert drain timed out, remaining alerts abandoned")
			return
		case opp := <-s.queue:
			s.deliver(ctx, opp)
		default:
			return
		}
	}
}

func (s *AlertService) deliver(parent context.Context, opp model.Opportunity) {
	msg := RenderAlert(s.pair, opp)
	log.Info().Msg(msg)

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		s.dedup.Release(opp.Direction)
		log.Error().Err(err).
			Str("direction", opp.Direction.String()).
			Msg("alert delivery failed")
		return
	}
	s.dedup.Commit(opp.Direction)

	if s.repo == nil {
		return
	}
	ev := port.OpportunityEvent{
		ID:          s.newID(),
		Symbol:      s.pair.String(),
		Ts:          s.now().UnixMilli(),
		Opportunity: opp,
	}
	if err := s.repo.PublishOpportunity(ctx, ev); err != nil {
		log.Warn().Err(err).Str("id", ev.ID).Msg("publish opportunity failed")
	}
}
