package domain

// Slot names a storage location in the market state.
type Slot int

const (
	SlotPrimary Slot = iota
	SlotSecondary
)

func (s Slot) String() string {
	switch s {
	case SlotPrimary:
		return "primary"
	case SlotSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// MarketState is a point-in-time copy of both markets' top of book.
type MarketState struct {
	Primary   TopOfBook `json:"primary"`
	Secondary TopOfBook `json:"secondary"`
}

// Book returns the book held in slot.
func (m MarketState) Book(slot Slot) TopOfBook {
	if slot == SlotSecondary {
		return m.Secondary
	}
	return m.Primary
}

// Complete reports whether all four price levels are present.
func (m MarketState) Complete() bool {
	return m.Primary.Complete() && m.Secondary.Complete()
}

// Missing lists the slots that are not complete yet.
func (m MarketState) Missing() []Slot {
	var out []Slot
	if !m.Primary.Complete() {
		out = append(out, SlotPrimary)
	}
	if !m.Secondary.Complete() {
		out = append(out, SlotSecondary)
	}
	return out
}
