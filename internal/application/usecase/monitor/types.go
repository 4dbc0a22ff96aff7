package monitor

import (
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"
)

type BookFeed = port.BookFeed

// Alerter receives every opportunity the detector emits.
type Alerter interface {
	Submit(opp model.Opportunity) bool
}

// Status is the latest view published after each cycle.
type Status struct {
	Symbol        string             `json:"symbol"`
	Primary       string             `json:"primary"`
	Secondary     string             `json:"secondary"`
	Phase         string             `json:"phase"`
	Books         domain.MarketState `json:"books"`
	Evaluation    model.Evaluation   `json:"evaluation"`
	Cycles        uint64             `json:"cycles"`
	SkippedCycles uint64             `json:"skipped_cycles"`
	LastCycleAt   time.Time          `json:"last_cycle_at"`
}
