package dataset

import (
	"math"
	"sort"

	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/panel"
)

// Universe holds the market panels pivoted from observations. Every panel
// shares the same sorted period keys and tickers.
type Universe struct {
	Price    *panel.Panel
	Bid      *panel.Panel
	Ask      *panel.Panel
	Industry *panel.Labels
	// DollarVolume is the per-period total of |price|·volume across tickers.
	DollarVolume []float64
}

// HasQuotes reports whether any bid or ask was observed.
func (u *Universe) HasQuotes() bool {
	for t := range u.Bid.Data {
		if panel.AnyValid(u.Bid.Row(t)) && panel.AnyValid(u.Ask.Row(t)) {
			return true
		}
	}
	return false
}

// Pivot spreads observations into panels. When a ticker appears more than
// once in a period the first non-missing value of each field wins. Prices
// are taken in absolute value: a negative price marks a bid/ask midpoint.
func Pivot(obs []Observation) (*Universe, error) {
	if len(obs) == 0 {
		return nil, core.Errorf(core.ErrNoData, "universe has no observations")
	}
	periods, tickers := axes(obs, func(o Observation) (int64, string) { return o.Period, o.Ticker })
	pi, ti := positions(periods), positions(tickers)

	u := &Universe{
		Price:        panel.New(periods, tickers),
		Bid:          panel.New(periods, tickers),
		Ask:          panel.New(periods, tickers),
		Industry:     panel.NewLabels(periods, tickers),
		DollarVolume: make([]float64, len(periods)),
	}
	volume := panel.New(periods, tickers)

	for _, o := range obs {
		t, i := pi[int(o.Period)], ti[o.Ticker]
		first(u.Price, t, i, math.Abs(o.Price))
		first(u.Bid, t, i, o.Bid)
		first(u.Ask, t, i, o.Ask)
		first(volume, t, i, o.Volume)
		if u.Industry.Data[t][i] == "" {
			u.Industry.Data[t][i] = o.Industry
		}
	}

	for t := range periods {
		var total float64
		for i := range tickers {
			p, v := u.Price.At(t, i), volume.At(t, i)
			if panel.Valid(p) && panel.Valid(v) {
				total += p * v
			}
		}
		u.DollarVolume[t] = total
	}
	return u, nil
}

// first stores v unless the cell already holds a value; zero and
// non-finite values are missing.
func first(p *panel.Panel, t, i int, v float64) {
	if v == 0 || !panel.Valid(v) || panel.Valid(p.At(t, i)) {
		return
	}
	p.Set(t, i, v)
}

// PivotCells spreads a long-format table into a panel. Later duplicates of
// a cell are ignored.
func PivotCells(cells []Cell) (*panel.Panel, error) {
	if len(cells) == 0 {
		return nil, core.Errorf(core.ErrNoData, "table has no cells")
	}
	periods, columns := axes(cells, func(c Cell) (int64, string) { return c.Period, c.Column })
	pi, ci := positions(periods), positions(columns)
	out := panel.New(periods, columns)
	for _, c := range cells {
		t, i := pi[int(c.Period)], ci[c.Column]
		if !panel.Valid(out.At(t, i)) && panel.Valid(c.Value) {
			out.Set(t, i, c.Value)
		}
	}
	return out, nil
}

// Flatten is the inverse of PivotCells; missing values are omitted.
func Flatten(p *panel.Panel) []Cell {
	var cells []Cell
	for t, key := range p.Periods {
		for i, c := range p.Columns {
			if v := p.At(t, i); panel.Valid(v) {
				cells = append(cells, Cell{Period: int64(key), Column: c, Value: v})
			}
		}
	}
	return cells
}

func axes[T any](rows []T, key func(T) (int64, string)) ([]int, []string) {
	seenP := make(map[int]struct{})
	seenC := make(map[string]struct{})
	var periods []int
	var columns []string
	for _, r := range rows {
		p, c := key(r)
		if _, ok := seenP[int(p)]; !ok {
			seenP[int(p)] = struct{}{}
			periods = append(periods, int(p))
		}
		if _, ok := seenC[c]; !ok {
			seenC[c] = struct{}{}
			columns = append(columns, c)
		}
	}
	sort.Ints(periods)
	sort.Strings(columns)
	return periods, columns
}

func positions[K comparable](keys []K) map[K]int {
	pos := make(map[K]int, len(keys))
	for i, k := range keys {
		pos[k] = i
	}
	return pos
}
