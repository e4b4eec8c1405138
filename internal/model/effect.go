package model

// EffectSummary is the average effect of the treatment on one score.
type EffectSummary struct {
	Score   string  `csv:"score" json:"score"`
	ATE     float64 `csv:"ate" json:"ate"`
	ATT     float64 `csv:"att" json:"att"`
	Units   int     `csv:"units" json:"units"`
	Matched int     `csv:"matched" json:"matched"`
	Groups  int     `csv:"groups" json:"groups"`
	Dropped int     `csv:"dropped" json:"dropped"`
}

// ConditionalEffect is the effect within one matched group. Covariates holds
// the decoded value of each covariate, or "*" when the matcher ignored it.
type ConditionalEffect struct {
	Score      string
	Covariates map[string]string
	CATE       float64
	Size       int
	Treated    int
	Control    int
}

// Wildcard marks a covariate that did not participate in a match.
const Wildcard = "*"
