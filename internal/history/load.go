package history

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/tableio"
)

// LoadCases reads charge-level records from a CSV file.
func LoadCases(path string) ([]model.Case, error) {
	cases, err := tableio.ReadCSV[model.Case](path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("history: loaded cases", zap.String("path", path), zap.Int("rows", len(cases)))
	return cases, nil
}

// YearSpan returns the first and last calc.year of cases. Rows without a
// year are ignored; ok is false when no row has one.
func YearSpan(cases []model.Case) (first, last int, ok bool) {
	for _, c := range cases {
		if c.Year <= 0 {
			continue
		}
		if !ok || c.Year < first {
			first = c.Year
		}
		if !ok || c.Year > last {
			last = c.Year
		}
		ok = true
	}
	return first, last, ok
}

// CheckYears fails when [start, end] does not overlap the years present in
// cases and warns when it only partly does.
func CheckYears(cases []model.Case, start, end int) error {
	if start > end {
		return eris.Errorf("history: start year %d after end year %d", start, end)
	}
	first, last, ok := YearSpan(cases)
	if !ok {
		return eris.New("history: no case has a year")
	}
	if start > last || end < first {
		return eris.Errorf("history: years %d-%d outside the data (%d-%d)", start, end, first, last)
	}
	if start < first || end > last {
		zap.L().Warn("history: year range extends beyond the data",
			zap.Int("start", start), zap.Int("end", end),
			zap.Int("first_year", first), zap.Int("last_year", last))
	}
	return nil
}
