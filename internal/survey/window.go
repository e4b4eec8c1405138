package survey

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/rai-disparity/internal/model"
)

// Window collapses the years [start, start+window] of each source and cell
// into one row: rate columns are averaged over the years that have them and
// counts are summed. The result carries Year = start and is sorted by cell.
func Window(rates []model.ArrestRate, start, window int) []model.ArrestRate {
	type key struct {
		source string
		cell   model.Cell
	}
	type acc struct {
		count                     int
		arrest, smooth, reporting []float64
	}

	groups := make(map[key]*acc)
	var keys []key
	for _, r := range rates {
		if r.Year < start || r.Year > start+window {
			continue
		}
		k := key{source: r.Source, cell: r.Cell}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
			keys = append(keys, k)
		}
		a.count += r.Count
		a.arrest = appendRate(a.arrest, r.ArrestRate)
		a.smooth = appendRate(a.smooth, r.ArrestRateSmooth)
		a.reporting = appendRate(a.reporting, r.ReportingRate)
	}

	slices.SortFunc(keys, func(a, b key) int {
		switch {
		case a.source != b.source:
			if a.source < b.source {
				return -1
			}
			return 1
		case a.cell.Less(b.cell):
			return -1
		case b.cell.Less(a.cell):
			return 1
		}
		return 0
	})

	out := make([]model.ArrestRate, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		out = append(out, model.ArrestRate{
			Source:           k.source,
			Cell:             k.cell,
			Year:             start,
			Count:            a.count,
			ArrestRate:       mean(a.arrest),
			ArrestRateSmooth: mean(a.smooth),
			ReportingRate:    mean(a.reporting),
		})
	}
	return out
}

func appendRate(list []float64, v *float64) []float64 {
	if v == nil || math.IsNaN(*v) {
		return list
	}
	return append(list, *v)
}

func mean(vs []float64) *float64 {
	if len(vs) == 0 {
		return nil
	}
	return model.FloatPtr(stat.Mean(vs, nil))
}
