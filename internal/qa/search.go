// Package qa answers questions over the homologation report index and writes
// per-institution analysis reports with a language model.
package qa

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/pkg/jina"
)

// Embedder turns text into vectors. jina.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, inputs []string, task string) ([][]float64, error)
}

// Hit is one retrieved chunk with its similarity to the query.
type Hit struct {
	Doc   string  `json:"doc"`
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Searcher ranks index chunks by cosine similarity to a query.
type Searcher struct {
	index    *model.Index
	embedder Embedder
}

// NewSearcher returns a Searcher over ix.
func NewSearcher(ix *model.Index, e Embedder) *Searcher {
	if ix == nil {
		ix = &model.Index{}
	}
	return &Searcher{index: ix, embedder: e}
}

// Docs returns the institution documents of the index.
func (s *Searcher) Docs() []string { return s.index.Docs() }

// Search embeds query and returns the topK most similar chunks, best first.
// A non-empty doc restricts the search to that document. Chunks without an
// embedding, with a zero norm or a dimension mismatch are skipped.
func (s *Searcher) Search(ctx context.Context, query, doc string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{query}, jina.TaskQuery)
	if err != nil {
		return nil, eris.Wrap(err, "qa: embed query")
	}
	if len(vecs) != 1 {
		return nil, eris.Errorf("qa: embed query: got %d vectors", len(vecs))
	}
	q := vecs[0]

	var hits []Hit
	skipped := 0
	for _, c := range s.index.Chunks {
		if doc != "" && c.Doc != doc {
			continue
		}
		sim, ok := CosineSimilarity(q, c.Embedding)
		if !ok {
			skipped++
			continue
		}
		hits = append(hits, Hit{Doc: c.Doc, Page: c.Page, Text: c.Text, Score: sim})
	}
	if skipped > 0 {
		zap.L().Debug("qa: skipped chunks without usable embedding", zap.Int("skipped", skipped))
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// CosineSimilarity returns a·b / (|a||b|). It reports false for empty or
// mismatched vectors and zero norms.
func CosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// DetectInstitution returns the first document whose name, lowercased with
// underscores read as spaces, occurs in the lowercased query.
func DetectInstitution(query string, docs []string) string {
	q := strings.ToLower(query)
	for _, d := range docs {
		name := strings.ToLower(strings.ReplaceAll(d, "_", " "))
		if name != "" && strings.Contains(q, name) {
			return d
		}
	}
	return ""
}
