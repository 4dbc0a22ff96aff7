package model

// Direction 套利方向
type Direction int

const (
	BuyPrimarySellSecondary Direction = iota
	BuySecondarySellPrimary
)

func (d Direction) String() string {
	switch d {
	case BuyPrimarySellSecondary:
		return "BUY_PRIMARY_SELL_SECONDARY"
	case BuySecondarySellPrimary:
		return "BUY_SECONDARY_SELL_PRIMARY"
	default:
		return "UNKNOWN"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Opportunity 单个方向的价差计算结果，每个周期重新计算，不持久化
type Opportunity struct {
	Direction       Direction `json:"direction"`
	BuyMarket       string    `json:"buy_market"`
	SellMarket      string    `json:"sell_market"`
	BuyPrice        float64   `json:"buy_price"`  // 买入市场的 ask
	SellPrice       float64   `json:"sell_price"` // 卖出市场的 bid
	SpreadRatio     float64   `json:"spread_ratio"`
	TradableQty     float64   `json:"tradable_qty"`
	ProjectedProfit float64   `json:"projected_profit"` // 以计价货币计
}

// SpreadPercent returns the spread ratio as a percentage.
func (o Opportunity) SpreadPercent() float64 {
	return o.SpreadRatio * 100
}

// EvalStatus 检测器对一个周期的判定
type EvalStatus int

const (
	StatusIncomplete EvalStatus = iota // some price level absent
	StatusMalformed                    // non-positive or non-finite values
	StatusReady
)

func (s EvalStatus) String() string {
	switch s {
	case StatusIncomplete:
		return "incomplete"
	case StatusMalformed:
		return "malformed"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

func (s EvalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Evaluation is the full detector output for one cycle. Legs are only
// meaningful when Status is StatusReady.
type Evaluation struct {
	Status    EvalStatus     `json:"status"`
	Threshold float64        `json:"threshold"`
	Legs      [2]Opportunity `json:"legs"`
}

// Leg returns the computed leg for d.
func (e Evaluation) Leg(d Direction) Opportunity {
	return e.Legs[d]
}

// Opportunities returns the legs whose spread strictly exceeds the threshold.
func (e Evaluation) Opportunities() []Opportunity {
	if e.Status != StatusReady {
		return nil
	}
	var out []Opportunity
	for _, leg := range e.Legs {
		if leg.SpreadRatio > e.Threshold {
			out = append(out, leg)
		}
	}
	return out
}
