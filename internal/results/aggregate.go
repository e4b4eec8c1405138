// Package results summarizes ATEs across experiment sweeps.
package results

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rai-disparity/internal/model"
	"github.com/sells-group/rai-disparity/internal/tableio"
)

// Sidecar keys that never take part in grouping.
const (
	keySeed  = "seed"
	keyRunID = "run_id"
)

// Experiment is one sidecar's parameters joined with its ATEs.
type Experiment struct {
	Path   string
	Params map[string]string
	ATE    map[string]float64
}

// Load walks dir for sidecars and reads the ATE table next to each.
// Sidecars without an ATE table are skipped with a warning.
func Load(dir string) ([]Experiment, error) {
	log := zap.L().With(zap.String("component", "results"))
	var out []Experiment
	skipped := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		atePath := strings.TrimSuffix(path, ".json") + "-ate.csv"
		if _, err := os.Stat(atePath); err != nil {
			skipped++
			log.Warn("results: sidecar without ate table", zap.String("path", path))
			return nil
		}
		exp, err := loadExperiment(path, atePath)
		if err != nil {
			return err
		}
		out = append(out, exp)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "results: walk %s", dir)
	}
	log.Info("results: loaded experiments",
		zap.String("dir", dir), zap.Int("experiments", len(out)), zap.Int("skipped", skipped))
	return out, nil
}

func loadExperiment(sidecar, atePath string) (Experiment, error) {
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return Experiment{}, eris.Wrapf(err, "results: read %s", sidecar)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Experiment{}, eris.Wrapf(err, "results: decode %s", sidecar)
	}
	exp := Experiment{Path: sidecar, Params: make(map[string]string, len(raw)), ATE: make(map[string]float64)}
	for k, v := range raw {
		exp.Params[k] = paramString(v)
	}

	ates, err := tableio.ReadCSV[model.EffectSummary](atePath)
	if err != nil {
		return Experiment{}, err
	}
	for _, a := range ates {
		exp.ATE[a.Score] = a.ATE
	}
	return exp, nil
}

// paramString renders a sidecar value; lists are joined by spaces.
func paramString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = paramString(e)
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprint(v)
}

// Summary is the mean and standard error of each score's ATE over the
// experiments sharing one parameter combination.
type Summary struct {
	Group map[string]string
	N     int
	Mean  map[string]float64
	SEM   map[string]float64
}

// Aggregate groups experiments by every parameter except the seed and the
// run id. Unless keepConstant is set, parameters equal across all
// experiments are left out of the grouping columns. It returns the grouping
// columns in order and one summary per group, ordered by group values.
func Aggregate(exps []Experiment, scores []string, keepConstant bool) ([]string, []Summary) {
	columns := groupColumns(exps, keepConstant)

	byKey := make(map[string][]Experiment)
	var keys []string
	for _, e := range exps {
		vals := make([]string, len(columns))
		for i, c := range columns {
			vals[i] = e.Params[c]
		}
		k := strings.Join(vals, "\x00")
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], e)
	}
	slices.Sort(keys)

	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		members := byKey[k]
		s := Summary{
			Group: make(map[string]string, len(columns)),
			N:     len(members),
			Mean:  make(map[string]float64, len(scores)),
			SEM:   make(map[string]float64, len(scores)),
		}
		for _, c := range columns {
			s.Group[c] = members[0].Params[c]
		}
		for _, score := range scores {
			var vals stats.Float64Data
			for _, m := range members {
				if v, ok := m.ATE[score]; ok && !math.IsNaN(v) {
					vals = append(vals, v)
				}
			}
			s.Mean[score], s.SEM[score] = meanSEM(vals)
		}
		out = append(out, s)
	}
	return columns, out
}

func groupColumns(exps []Experiment, keepConstant bool) []string {
	values := make(map[string]map[string]struct{})
	for _, e := range exps {
		for k, v := range e.Params {
			if values[k] == nil {
				values[k] = make(map[string]struct{})
			}
			values[k][v] = struct{}{}
		}
	}
	var cols []string
	for k, vs := range values {
		if k == keySeed || k == keyRunID {
			continue
		}
		if !keepConstant && len(vs) == 1 {
			continue
		}
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

// meanSEM returns the mean and the standard error of the mean. The error
// is NaN below two values.
func meanSEM(vals stats.Float64Data) (float64, float64) {
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	mean, err := stats.Mean(vals)
	if err != nil {
		return math.NaN(), math.NaN()
	}
	if len(vals) < 2 {
		return mean, math.NaN()
	}
	sd, err := stats.StandardDeviationSample(vals)
	if err != nil {
		return mean, math.NaN()
	}
	return mean, sd / math.Sqrt(float64(len(vals)))
}

// Records renders summaries as a table: grouping columns, then
// <score>_mean and <score>_sem per score, then the group size.
func Records(columns, scores []string, sums []Summary) ([]string, [][]string) {
	header := slices.Clone(columns)
	for _, s := range scores {
		header = append(header, s+"_mean")
	}
	for _, s := range scores {
		header = append(header, s+"_sem")
	}
	header = append(header, "n")

	records := make([][]string, len(sums))
	for i, sum := range sums {
		rec := make([]string, 0, len(header))
		for _, c := range columns {
			rec = append(rec, sum.Group[c])
		}
		for _, s := range scores {
			rec = append(rec, formatFloat(sum.Mean[s]))
		}
		for _, s := range scores {
			rec = append(rec, formatFloat(sum.SEM[s]))
		}
		rec = append(rec, strconv.Itoa(sum.N))
		records[i] = rec
	}
	return header, records
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Write aggregates the experiments under dir and writes the summary to out.
func Write(dir, out string, scores []string, keepConstant bool) (int, error) {
	exps, err := Load(dir)
	if err != nil {
		return 0, err
	}
	if len(exps) == 0 {
		return 0, eris.Errorf("results: no experiments under %s", dir)
	}
	columns, sums := Aggregate(exps, scores, keepConstant)
	header, records := Records(columns, scores, sums)
	if err := tableio.WriteRecords(out, header, records); err != nil {
		return 0, err
	}
	zap.L().Info("results: wrote summary",
		zap.String("path", out), zap.Int("groups", len(sums)), zap.Strings("columns", columns))
	return len(sums), nil
}
