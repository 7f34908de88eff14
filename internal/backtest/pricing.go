package backtest

import (
	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/panel"
)

// Pricing values trades and holdings. Quotes are forward-filled: Update must
// be called once per period in increasing order, and every price returned
// afterwards reflects the last usable quote at or before that period. A
// returned price may be NaN when an instrument has never been quoted.
type Pricing interface {
	Axis() (periods []int, columns []string)
	Update(t int)
	// Entry is the price paid to open a dollar allocation of sign weight.
	Entry(i int, weight float64) float64
	// Trade is the price at which a share change of sign delta executes.
	Trade(i int, delta float64) float64
	// Mark is the price at which a position of sign shares is valued.
	Mark(i int, shares float64) float64
}

// usable rejects missing, infinite and zero quotes.
func usable(v float64) bool {
	return panel.Valid(v) && v != 0
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = nan
	}
	return row
}

func carry(held, quotes []float64) {
	for i, q := range quotes {
		if usable(q) {
			held[i] = q
		}
	}
}

// LastPrice trades and marks every position at a single last price.
type LastPrice struct {
	price *panel.Panel
	held  []float64
}

// NewLastPrice prices every side at price.
func NewLastPrice(price *panel.Panel) *LastPrice {
	return &LastPrice{price: price, held: nanRow(price.Width())}
}

func (p *LastPrice) Axis() ([]int, []string) { return p.price.Periods, p.price.Columns }

func (p *LastPrice) Update(t int) { carry(p.held, p.price.Row(t)) }

func (p *LastPrice) Entry(i int, _ float64) float64 { return p.held[i] }

func (p *LastPrice) Trade(i int, _ float64) float64 { return p.held[i] }

func (p *LastPrice) Mark(i int, _ float64) float64 { return p.held[i] }

// BidAsk buys at the ask and sells at the bid. Long positions are marked at
// the bid and short positions at the ask, so an open position is always
// valued at the price that would close it.
type BidAsk struct {
	bid, ask *panel.Panel
	heldBid  []float64
	heldAsk  []float64
}

// NewBidAsk forward-fills bid and ask independently. Both panels must share
// the same axes.
func NewBidAsk(bid, ask *panel.Panel) (*BidAsk, error) {
	if err := bid.SameAxis(ask); err != nil {
		return nil, core.WrapError(core.ErrShapeMismatch, err)
	}
	return &BidAsk{
		bid:     bid,
		ask:     ask,
		heldBid: nanRow(bid.Width()),
		heldAsk: nanRow(ask.Width()),
	}, nil
}

func (p *BidAsk) Axis() ([]int, []string) { return p.bid.Periods, p.bid.Columns }

func (p *BidAsk) Update(t int) {
	carry(p.heldBid, p.bid.Row(t))
	carry(p.heldAsk, p.ask.Row(t))
}

func (p *BidAsk) Entry(i int, weight float64) float64 { return p.side(i, weight) }

func (p *BidAsk) Trade(i int, delta float64) float64 { return p.side(i, delta) }

func (p *BidAsk) Mark(i int, shares float64) float64 {
	if shares < 0 {
		return p.heldAsk[i]
	}
	return p.heldBid[i]
}

func (p *BidAsk) side(i int, sign float64) float64 {
	if sign < 0 {
		return p.heldBid[i]
	}
	return p.heldAsk[i]
}
