package service

import (
	"math"

	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"
)

// Markets names the two markets for the legs an evaluation produces.
type Markets struct {
	Primary   string
	Secondary string
}

// Evaluate runs the spread math in both directions over st.
// It never returns NaN or Inf: incomplete or malformed state yields no legs.
func Evaluate(st domain.MarketState, m Markets, threshold float64) model.Evaluation {
	ev := model.Evaluation{Status: model.StatusIncomplete, Threshold: threshold}
	if !st.Complete() {
		return ev
	}

	p, s := st.Primary, st.Secondary
	if !p.Bid.Valid() || !p.Ask.Valid() || !s.Bid.Valid() || !s.Ask.Valid() {
		ev.Status = model.StatusMalformed
		return ev
	}

	ev.Legs[model.BuyPrimarySellSecondary] = leg(model.BuyPrimarySellSecondary, m.Primary, m.Secondary, p.Ask, s.Bid)
	ev.Legs[model.BuySecondarySellPrimary] = leg(model.BuySecondarySellPrimary, m.Secondary, m.Primary, s.Ask, p.Bid)
	ev.Status = model.StatusReady
	return ev
}

// Detect returns the opportunities whose spread is strictly above threshold.
func Detect(st domain.MarketState, m Markets, threshold float64) []model.Opportunity {
	return Evaluate(st, m, threshold).Opportunities()
}

// leg buys at ask on buyMarket and sells at bid on sellMarket.
func leg(d model.Direction, buyMarket, sellMarket string, ask, bid domain.Level) model.Opportunity {
	diff := bid.Price - ask.Price
	qty := math.Min(ask.Qty, bid.Qty)
	return model.Opportunity{
		Direction:       d,
		BuyMarket:       buyMarket,
		SellMarket:      sellMarket,
		BuyPrice:        ask.Price,
		SellPrice:       bid.Price,
		SpreadRatio:     diff / ask.Price,
		TradableQty:     qty,
		ProjectedProfit: qty * diff,
	}
}
