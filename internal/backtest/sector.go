package backtest

import (
	"github.com/newthinker/statarb/internal/filter"
	"github.com/newthinker/statarb/internal/panel"
)

// SectorDiagnostic records how a sector rotation period split its capital.
type SectorDiagnostic struct {
	Period       int                `json:"period"`
	Sectors      map[string]float64 `json:"sectors"`      // industry filter weight per catalogued sector present and scored
	Stocks       map[string]float64 `json:"stocks"`       // sum of final stock weights per sector
	Uncatalogued int                `json:"uncatalogued"` // instruments whose label is outside the catalogue
}

// SectorWeighting is the two-level sector rotation: an industry filter over a
// per-period sector table, then a stock filter inside each catalogued sector
// scaled by that sector's weight.
type SectorWeighting struct {
	industry    *panel.Labels
	catalogue   map[string]struct{}
	score       *panel.Panel
	second      *panel.Panel
	indFilter   filter.Func
	stockFilter filter.Func

	diagnostics []SectorDiagnostic
}

// NewSectorWeighting expects industry, score and second on the same axes.
// score is the sector-level score already broadcast onto member instruments.
func NewSectorWeighting(industry *panel.Labels, catalogue []string, score, second *panel.Panel, indFilter, stockFilter filter.Func) *SectorWeighting {
	cat := make(map[string]struct{}, len(catalogue))
	for _, s := range catalogue {
		cat[s] = struct{}{}
	}
	return &SectorWeighting{
		industry:    industry,
		catalogue:   cat,
		score:       score,
		second:      second,
		indFilter:   indFilter,
		stockFilter: stockFilter,
	}
}

func (w *SectorWeighting) Axis() ([]int, []string) { return w.score.Periods, w.score.Columns }

// Diagnostics returns the per-period records of every Weights call.
func (w *SectorWeighting) Diagnostics() []SectorDiagnostic { return w.diagnostics }

func (w *SectorWeighting) Weights(t int) ([]float64, bool) {
	labels := w.industry.Row(t)
	score := w.score.Row(t)
	second := w.second.Row(t)

	diag := SectorDiagnostic{
		Period:  w.score.Periods[t],
		Sectors: make(map[string]float64),
		Stocks:  make(map[string]float64),
	}
	defer func() { w.diagnostics = append(w.diagnostics, diag) }()

	if !panel.AnyValid(score) {
		return nil, false
	}

	// One row per catalogued sector present, keyed by first appearance.
	var sectors []string
	members := make(map[string][]int)
	sectorScore := make(map[string]float64)
	for i, label := range labels {
		if label == "" {
			continue
		}
		if _, ok := w.catalogue[label]; !ok {
			diag.Uncatalogued++
			continue
		}
		if _, seen := members[label]; !seen {
			sectors = append(sectors, label)
			sectorScore[label] = nan
		}
		members[label] = append(members[label], i)
		if !panel.Valid(sectorScore[label]) && panel.Valid(score[i]) {
			sectorScore[label] = score[i]
		}
	}

	if len(sectors) == 0 {
		return nil, false
	}
	weights := nanRow(len(labels))

	table := make([]float64, len(sectors))
	for j, s := range sectors {
		table[j] = sectorScore[s]
	}
	sectorWeights := w.indFilter(table)

	for j, s := range sectors {
		sw := sectorWeights[j]
		if panel.Valid(sw) {
			diag.Sectors[s] = sw
		}
		idx := members[s]
		row := make([]float64, len(idx))
		for k, i := range idx {
			row[k] = second[i]
		}
		var total float64
		for k, v := range w.stockFilter(row) {
			weights[idx[k]] = v * sw
			total += panel.Clean(v * sw)
		}
		diag.Stocks[s] = total
	}
	return weights, true
}
