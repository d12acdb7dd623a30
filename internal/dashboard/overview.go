// Package dashboard builds the presentation data of the dashboard pages from
// scored records. Every function is pure.
package dashboard

import (
	"sort"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// DimensionMean is the network mean of one dimension.
type DimensionMean struct {
	Dimension model.Dimension `json:"dimension"`
	Label     string          `json:"label"`
	Mean      *float64        `json:"mean"`
}

// OverviewView is the network summary page.
type OverviewView struct {
	Institutions int             `json:"institutions"`
	Incomplete   int             `json:"incomplete"`
	Undefined    int             `json:"undefined"`
	MeanGlobal   *float64        `json:"mean_global"`
	Dimensions   []DimensionMean `json:"dimensions"`
}

func mean(values []*float64) *float64 {
	var sum float64
	var n int
	for _, v := range values {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := model.Round1(sum / float64(n))
	return &m
}

// NetworkMeans returns the mean of every dimension over the institutions
// where it is defined. A dimension undefined everywhere maps to nil.
func NetworkMeans(records []model.ScoredRecord) map[model.Dimension]*float64 {
	out := make(map[model.Dimension]*float64, len(model.Dimensions))
	for _, d := range model.Dimensions {
		vals := make([]*float64, len(records))
		for i, r := range records {
			vals[i] = r.Dimensions[d]
		}
		out[d] = mean(vals)
	}
	return out
}

// Overview summarizes the network. Dimensions are listed in ascending order
// of their mean, undefined means last.
func Overview(records []model.ScoredRecord) OverviewView {
	v := OverviewView{Institutions: len(records)}

	globals := make([]*float64, len(records))
	for i, r := range records {
		globals[i] = r.Global
		if r.Global == nil {
			v.Undefined++
		}
		if r.Incomplete {
			v.Incomplete++
		}
	}
	v.MeanGlobal = mean(globals)

	means := NetworkMeans(records)
	for _, d := range model.Dimensions {
		v.Dimensions = append(v.Dimensions, DimensionMean{Dimension: d, Label: d.Label(), Mean: means[d]})
	}
	sort.SliceStable(v.Dimensions, func(i, j int) bool {
		a, b := v.Dimensions[i].Mean, v.Dimensions[j].Mean
		if a == nil || b == nil {
			return a != nil
		}
		return *a < *b
	})
	return v
}

// RankingRow is one line of the full ranking table.
type RankingRow struct {
	Rank   int                          `json:"rank"`
	Name   string                       `json:"etablissement"`
	Global float64                      `json:"score_global"`
	Scores map[model.Dimension]*float64 `json:"scores"`
}

// Ranking lists institutions with a defined global score, best first. Ties
// are broken by name.
func Ranking(records []model.ScoredRecord) []RankingRow {
	rows := make([]RankingRow, 0, len(records))
	for _, r := range records {
		if r.Global == nil {
			continue
		}
		scores := make(map[model.Dimension]*float64, len(model.Dimensions))
		for _, d := range model.Dimensions {
			scores[d] = r.Dimensions[d]
		}
		rows = append(rows, RankingRow{Name: r.Name(), Global: *r.Global, Scores: scores})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Global != rows[j].Global {
			return rows[i].Global > rows[j].Global
		}
		return rows[i].Name < rows[j].Name
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
