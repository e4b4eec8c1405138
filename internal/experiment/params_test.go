package experiment

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rai-disparity/internal/model"
)

func baseParams() Params {
	return Params{
		StartYear: 2000,
		EndYear:   2004,
		Window:    2,
		Baseline:  "White",
		Treatment: "Black",
		Algorithm: "flame",
		Bins:      []int{-1, 0, 1, 2, 4, 9, 100000},
		Lambda:    1,
		Omega:     1,
		Smoothing: "regression",
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Params)
		want   string
	}{
		{
			name:   "observed",
			modify: func(*Params) {},
			want:   "White-Black_observed_flame_nomrep_0b1b2b4b9",
		},
		{
			name: "synthetic subsampled",
			modify: func(p *Params) {
				p.Synthetic = true
				p.Subsample = 500
				p.Repeats = true
				p.Algorithm = "dame"
				p.Lambda = 1.5
				p.Omega = 0.25
				p.Seed = 3
				p.Bins = []int{-1, 0, 100}
			},
			want: "subsampled_White-Black_synth_dame_mrep_lam3e1500om3e250_3_regression_arrest_rate_smooth_ncvs1_nsduh1_0",
		},
		{
			name: "synthetic without lambda",
			modify: func(p *Params) {
				p.Synthetic = true
				p.Lambda = 0
			},
			want: "White-Black_synth_flame_nomrep_nolam_0_regression_arrest_rate_smooth_ncvs1_nsduh1_0b1b2b4b9",
		},
		{
			name: "synthetic rate inputs",
			modify: func(p *Params) {
				p.Synthetic = true
				p.Smoothing = "average"
				p.RateColumn = "arrest_rate"
				p.RateMultNCVS = 0.25
				p.RateMultNSDUH = 2
				p.Bins = []int{-1, 100}
			},
			want: "White-Black_synth_flame_nomrep_lam3e1000om3e1000_0_average_arrest_rate_ncvs0.25_nsduh2",
		},
		{
			name:   "no interior bins",
			modify: func(p *Params) { p.Bins = []int{-1, 100} },
			want:   "White-Black_observed_flame_nomrep",
		},
		{
			name: "rate inputs ignored when observed",
			modify: func(p *Params) {
				p.Seed = 9
				p.Smoothing = "average"
				p.RateMultNCVS = 0.25
			},
			want: "White-Black_observed_flame_nomrep_0b1b2b4b9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseParams()
			tt.modify(&p)
			assert.Equal(t, tt.want, p.Stem())
		})
	}
}

func TestOutputDir(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "2000-2004_2"), baseParams().OutputDir("out"))
}

func TestSidecarJSON(t *testing.T) {
	p := baseParams()
	p.Seed = 7
	data, err := json.Marshal(NewSidecar(p, "run-1"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "flame", got["matching"])
	assert.Equal(t, []any{"-1", "0", "1", "2", "4", "9", "100000"}, got["crime_bins"])
	assert.EqualValues(t, 7, got["seed"])
	assert.NotEmpty(t, got["commit"])
	assert.NotContains(t, got, "Bins")
}

func TestParamsConversions(t *testing.T) {
	p := baseParams()
	p.RateMultNCVS = 2
	p.RateMultNSDUH = 0.5

	sp := p.Synth()
	assert.Equal(t, 2.0, sp.RateMult[model.SourceNCVS])
	assert.Equal(t, 0.5, sp.RateMult[model.SourceNSDUH])
	assert.Equal(t, p.Window, sp.Window)
	assert.Equal(t, p.Smoothing, sp.Smoothing)

	ep, err := p.Effect()
	require.NoError(t, err)
	assert.Equal(t, 0, ep.Treatment["White"])
	assert.Equal(t, 1, ep.Treatment["Black"])

	p.Treatment = p.Baseline
	_, err = p.Effect()
	assert.Error(t, err)
}
