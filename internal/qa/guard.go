package qa

import (
	"context"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/resilience"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/pkg/anthropic"
)

type guardedLLM struct {
	next anthropic.Client
	cb   *resilience.Breaker
}

// GuardLLM routes every model call through cb.
func GuardLLM(next anthropic.Client, cb *resilience.Breaker) anthropic.Client {
	return &guardedLLM{next: next, cb: cb}
}

func (g *guardedLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return resilience.Do(ctx, g.cb, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return g.next.CreateMessage(ctx, req)
	})
}

type guardedEmbedder struct {
	next Embedder
	cb   *resilience.Breaker
}

// GuardEmbedder routes every embedding call through cb.
func GuardEmbedder(next Embedder, cb *resilience.Breaker) Embedder {
	return &guardedEmbedder{next: next, cb: cb}
}

func (g *guardedEmbedder) Embed(ctx context.Context, inputs []string, task string) ([][]float64, error) {
	return resilience.Do(ctx, g.cb, func(ctx context.Context) ([][]float64, error) {
		return g.next.Embed(ctx, inputs, task)
	})
}
