package taxonomy

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/tableio"
)

// Coefficients maps a detailed offense description to its OGRS3 offense coefficient.
type Coefficients map[string]float64

// LoadCoefficients reads a CSV or XLSX table with columns calc.detailed and coef.
// Rows with a non-numeric coefficient are skipped.
func LoadCoefficients(ctx context.Context, path string) (Coefficients, error) {
	tbl, err := tableio.ReadTable(ctx, path, tableio.TableOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: load coefficients")
	}
	if !tbl.Has("calc.detailed") || !tbl.Has("coef") {
		return nil, eris.Errorf("taxonomy: %s needs columns calc.detailed and coef", path)
	}

	out := make(Coefficients, tbl.Len())
	skipped := 0
	for i := range tbl.Rows {
		v, ok := tbl.Float(i, "coef")
		if !ok {
			skipped++
			continue
		}
		out[strings.TrimSpace(tbl.Get(i, "calc.detailed"))] = v
	}
	if skipped > 0 {
		zap.L().Warn("taxonomy: skipped coefficient rows", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return out, nil
}

// Categories maps a detailed offense description to its offense category.
type Categories map[string]string

// LoadCategories reads a CSV or XLSX table with columns calc.detailed and offense_category.
func LoadCategories(ctx context.Context, path string) (Categories, error) {
	tbl, err := tableio.ReadTable(ctx, path, tableio.TableOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: load categories")
	}
	if !tbl.Has("calc.detailed") || !tbl.Has("offense_category") {
		return nil, eris.Errorf("taxonomy: %s needs columns calc.detailed and offense_category", path)
	}

	out := make(Categories, tbl.Len())
	for i := range tbl.Rows {
		out[strings.TrimSpace(tbl.Get(i, "calc.detailed"))] = strings.TrimSpace(tbl.Get(i, "offense_category"))
	}
	return out, nil
}
