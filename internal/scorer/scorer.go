package scorer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// Scorer computes dimension and global scores from a validated snapshot of
// the rules. A Scorer is immutable and safe for concurrent use.
type Scorer struct {
	rules   Rules
	weights map[model.Dimension]float64
	norm    *Normalizer
}

// New validates rules and returns a Scorer holding a deep copy of them.
// Invalid rules are rejected here, before any row is scored.
func New(r Rules) (*Scorer, error) {
	if err := ValidateRules(r); err != nil {
		return nil, err
	}
	snap := r.Clone()
	return &Scorer{
		rules:   snap,
		weights: NormalizedWeights(snap),
		norm:    NewNormalizer(snap),
	}, nil
}

// Rules returns a copy of the scorer's rules.
func (s *Scorer) Rules() Rules { return s.rules.Clone() }

// Normalizer returns the compiled field normalizer.
func (s *Scorer) Normalizer() *Normalizer { return s.norm }

// Weights returns the normalized weight map. The returned map is a copy.
func (s *Scorer) Weights() map[model.Dimension]float64 {
	out := make(map[model.Dimension]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// rowResult is the per-row reduction before output rounding.
type rowResult struct {
	dims     map[model.Dimension]*float64
	global   *float64
	missing  []model.Dimension
	noWeight bool
}

// DimensionScores returns the unrounded score of every dimension for one
// record. Undefined dimensions map to nil.
func (s *Scorer) DimensionScores(rec model.Record) map[model.Dimension]*float64 {
	out := make(map[model.Dimension]*float64, len(model.Dimensions))
	for _, d := range model.Dimensions {
		var sum float64
		var n int
		for _, ind := range IndicatorsFor(d) {
			if v, ok := s.norm.Apply(ind, rec.Get(ind.Column)); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[d] = nil
			continue
		}
		mean := clip(sum/float64(n), 0, 100)
		out[d] = &mean
	}
	return out
}

// reduce computes dimensions and the redistributed global score of one row.
func (s *Scorer) reduce(rec model.Record) rowResult {
	res := rowResult{dims: s.DimensionScores(rec)}

	var weighted, wsum float64
	for _, d := range model.Dimensions {
		v := res.dims[d]
		if v == nil {
			res.missing = append(res.missing, d)
			continue
		}
		w := s.weights[d]
		weighted += w * *v
		wsum += w
	}

	if len(res.missing) == len(model.Dimensions) {
		return res
	}
	if wsum <= 0 {
		res.noWeight = true
		return res
	}
	g := clip(weighted/wsum, 0, 100)
	res.global = &g
	return res
}

// ScoreRecord scores a single institution. The result depends only on rec
// and the scorer's rules.
func (s *Scorer) ScoreRecord(rec model.Record) model.ScoredRecord {
	res := s.reduce(rec)

	out := model.ScoredRecord{
		Raw:        rec.Clone(),
		Dimensions: make(map[model.Dimension]*float64, len(model.Dimensions)),
		Incomplete: len(res.missing) > 0 || res.global == nil,
	}
	for _, d := range model.Dimensions {
		if v := res.dims[d]; v != nil {
			r := model.Round1(*v)
			out.Dimensions[d] = &r
		} else {
			out.Dimensions[d] = nil
		}
	}
	if res.global != nil {
		g := model.Round1(*res.global)
		out.Global = &g
	}
	out.MissingDimensions = explain(res)
	return out
}

func explain(res rowResult) string {
	switch {
	case len(res.missing) == len(model.Dimensions):
		return model.ExplainAllMissing
	case res.noWeight:
		return model.ExplainNoWeight
	case len(res.missing) == 0:
		return model.ExplainComplete
	}
	names := make([]string, len(res.missing))
	for i, d := range res.missing {
		names[i] = string(d)
	}
	return "missing: " + strings.Join(names, ", ")
}

// ComputeScores scores every row of the table. It is pure and idempotent:
// the same table always yields the same output, row by row.
func (s *Scorer) ComputeScores(tbl *model.Table) []model.ScoredRecord {
	if tbl == nil {
		return nil
	}
	out := make([]model.ScoredRecord, len(tbl.Rows))
	for i, rec := range tbl.Rows {
		out[i] = s.ScoreRecord(rec)
	}
	zap.L().Debug("scorer: scoring complete",
		zap.Int("institutions", len(out)),
		zap.Strings("missing_columns", missingColumns(tbl)),
	)
	return out
}

// ComputeScoresConcurrent scores rows on a bounded pool of goroutines and
// gathers them in input order. The output equals ComputeScores.
func (s *Scorer) ComputeScoresConcurrent(ctx context.Context, tbl *model.Table, workers int) ([]model.ScoredRecord, error) {
	if tbl == nil {
		return nil, nil
	}
	if workers <= 1 {
		return s.ComputeScores(tbl), nil
	}

	out := make([]model.ScoredRecord, len(tbl.Rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, rec := range tbl.Rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.ScoreRecord(rec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "scorer: concurrent scoring")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scorer: concurrent scoring")
	}

	zap.L().Debug("scorer: concurrent scoring complete",
		zap.Int("institutions", len(out)),
		zap.Int("workers", workers),
	)
	return out, nil
}

// missingColumns lists scorer columns the source table did not carry.
func missingColumns(tbl *model.Table) []string {
	var out []string
	for _, col := range RequiredColumns() {
		if !tbl.HasColumn(col) {
			out = append(out, col)
		}
	}
	return out
}

// Summarize counts complete, incomplete and undefined institutions and the
// mean global score over defined values.
func Summarize(records []model.ScoredRecord) model.RunSummary {
	sum := model.RunSummary{Institutions: len(records)}
	var total float64
	var n int
	for _, r := range records {
		switch {
		case r.Global == nil:
			sum.Undefined++
		case r.Incomplete:
			sum.Incomplete++
		default:
			sum.Complete++
		}
		if r.Global != nil {
			total += *r.Global
			n++
		}
	}
	if n > 0 {
		m := model.Round1(total / float64(n))
		sum.MeanGlobal = &m
	}
	return sum
}
