package monitor

import (
	"fmt"
	"strconv"
	"strings"

	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

type Formatter struct {
	Pair      domain.Pair
	Primary   string
	Secondary string
	Threshold float64
	Color     bool
}

func (f *Formatter) colorize(s, c string) string {
	if !f.Color {
		return s
	}
	return c + s + ansiReset
}

// Render builds the per-cycle status report.
func (f *Formatter) Render(st domain.MarketState, ev model.Evaluation, phase Phase) string {
	if phase == PhaseWaiting || ev.Status == model.StatusIncomplete {
		return f.renderWaiting(st)
	}

	width := max(len(f.Primary), len(f.Secondary)) + 1

	var sb strings.Builder
	sb.WriteString("\n=== Current Prices ===\n")
	f.writeBook(&sb, f.Primary, st.Primary, width)
	f.writeBook(&sb, f.Secondary, st.Secondary, width)

	sb.WriteString("\n=== Price Gaps ===\n")
	if ev.Status == model.StatusMalformed {
		sb.WriteString(f.colorize("malformed quote, gaps skipped this cycle", ansiYellow))
		sb.WriteString("\n")
	} else {
		f.writeGap(&sb, ev.Leg(model.BuyPrimarySellSecondary))
		f.writeGap(&sb, ev.Leg(model.BuySecondarySellPrimary))
	}
	sb.WriteString("===================\n")
	return sb.String()
}

func (f *Formatter) renderWaiting(st domain.MarketState) string {
	var names []string
	for _, slot := range st.Missing() {
		names = append(names, f.marketName(slot))
	}
	if len(names) == 0 {
		names = []string{f.Primary, f.Secondary}
	}
	return f.colorize(fmt.Sprintf("Waiting for %s order book (%s) ...", strings.Join(names, ", "), f.Pair), ansiDim) + "\n"
}

func (f *Formatter) marketName(slot domain.Slot) string {
	if slot == domain.SlotSecondary {
		return f.Secondary
	}
	return f.Primary
}

func (f *Formatter) writeBook(sb *strings.Builder, name string, b domain.TopOfBook, width int) {
	fmt.Fprintf(sb, "%-*s Bid %s - %s | Ask %s - %s\n",
		width, name+":",
		levelPart(b.HasBid, b.Bid.Price), levelPart(b.HasBid, b.Bid.Qty),
		levelPart(b.HasAsk, b.Ask.Price), levelPart(b.HasAsk, b.Ask.Qty))
}

func (f *Formatter) writeGap(sb *strings.Builder, o model.Opportunity) {
	gap := fmt.Sprintf("%.2f%%", o.SpreadPercent())
	col := ansiYellow
	switch {
	case o.SpreadRatio > f.Threshold:
		col = ansiGreen
	case o.SpreadRatio < 0:
		col = ansiRed
	}
	fmt.Fprintf(sb, "%s -> %s Gap: %s => %s %s => %.4f %s\n",
		o.BuyMarket, o.SellMarket, f.colorize(gap, col),
		FormatNumber(o.TradableQty), f.Pair.Base,
		o.ProjectedProfit, f.Pair.Quote)
}

func levelPart(ok bool, v float64) string {
	if !ok {
		return "--"
	}
	return FormatNumber(v)
}

// FormatNumber prints v with the fewest digits that round-trip.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
