package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/dataset"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/fetcher"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/qa"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/resilience"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/scorer"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/store"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/pkg/anthropic"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/pkg/jina"
)

// newLoader builds the table and index loader over a rate-limited fetcher.
func newLoader(c *config.Config) *dataset.Loader {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    time.Duration(c.Source.TimeoutSecs) * time.Second,
		MaxRetries: c.Source.MaxRetries,
	})
	return dataset.NewLoader(c.Source, c.Index, f)
}

// newScorer validates the configured rules.
func newScorer(c *config.Config) (*scorer.Scorer, error) {
	r, err := scorer.RulesFromConfig(c.Scoring)
	if err != nil {
		return nil, err
	}
	return scorer.New(r)
}

// openStore opens the configured run store. A disabled store returns nil
// without error.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store)
	if eris.Is(err, store.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func breaker(c *config.Config, name string) *resilience.Breaker {
	return resilience.NewBreaker(resilience.Config{
		Name:             name,
		FailureThreshold: c.QA.BreakerFailures,
		ResetTimeout:     time.Duration(c.QA.BreakerResetSecs) * time.Second,
	})
}

func newLLM(c *config.Config) anthropic.Client {
	return qa.GuardLLM(anthropic.NewClient(c.Anthropic.Key), breaker(c, "anthropic"))
}

// newAnswerer loads the index and wires retrieval to the language model.
func newAnswerer(ctx context.Context, c *config.Config, l *dataset.Loader) (*qa.Answerer, error) {
	ix, err := l.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	emb := qa.GuardEmbedder(
		jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL), jina.WithModel(c.Jina.Model)),
		breaker(c, "jina"),
	)
	zap.L().Debug("qa: answerer ready", zap.Int("documents", len(ix.Docs())))
	return qa.NewAnswerer(qa.NewSearcher(ix, emb), newLLM(c), qa.AnswerOptions{
		Model:        c.Anthropic.Model,
		MaxTokens:    int64(c.Anthropic.MaxTokens),
		TopK:         c.QA.TopK,
		ExcerptChars: c.QA.ExcerptChars,
	}), nil
}

func newReporter(c *config.Config) *qa.Reporter {
	return qa.NewReporter(newLLM(c), qa.ReportOptions{
		Model:     c.Anthropic.Model,
		MaxTokens: int64(c.Anthropic.MaxTokens),
	})
}
