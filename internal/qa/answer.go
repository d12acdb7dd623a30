package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/pkg/anthropic"
)

const promptRules = `Tu es un assistant expert en analyse et synthèse de rapports d'homologation et de suivi
d'établissements français à l'étranger.

Contexte : tu aides l'équipe de pilotage de la Mission Laïque Française / OSUI (tête de réseau)
à exploiter ces documents. %s

Règles de réponse :
- Appuie-toi uniquement sur les extraits fournis (ne jamais inventer).
- Structure systématiquement la réponse avec des titres clairs.
- Mets les éléments en liste à puces pour la lisibilité.
- Intègre toujours les références de pages quand elles sont disponibles.
- Organise la réponse autour des rubriques suivantes si possible :
    * Gouvernance et contexte
    * Atouts et points forts
    * Points de vigilance / critiques
    * Recommandations et axes de travail prioritaires
    * Enjeux pour le pilotage réseau (MLF/OSUI)
- Si la question implique une comparaison avec %s, présente une
analyse comparative structurée.
- Termine par une courte synthèse stratégique orientée "tête de réseau".`

// SystemPrompt returns the institution-scoped prompt when institution is set,
// the network-wide prompt otherwise.
func SystemPrompt(institution string) string {
	if institution != "" {
		return fmt.Sprintf(promptRules,
			"Réponds UNIQUEMENT pour l'établissement : "+institution+".",
			"d'autres établissements")
	}
	return fmt.Sprintf(promptRules,
		"Réponds en t'appuyant uniquement sur les extraits fournis.",
		"plusieurs établissements")
}

// BuildContext renders hits as "[doc, p.N] excerpt..." blocks separated by a
// blank line. Excerpts are cut at excerptChars runes.
func BuildContext(hits []Hit, excerptChars int) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[%s, p.%d] %s...", h.Doc, h.Page, truncate(h.Text, excerptChars))
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Source is a page reference backing an answer.
type Source struct {
	Doc   string  `json:"doc"`
	Page  int     `json:"page"`
	Score float64 `json:"score"`
}

// Answer is the reply to one question.
type Answer struct {
	Answer      string   `json:"answer"`
	Institution string   `json:"institution,omitempty"`
	Sources     []Source `json:"sources"`
}

// AnswerOptions configures an Answerer.
type AnswerOptions struct {
	Model        string
	MaxTokens    int64
	TopK         int
	ExcerptChars int
}

// Answerer retrieves relevant excerpts and asks the model to answer from them.
type Answerer struct {
	searcher *Searcher
	llm      anthropic.Client
	opts     AnswerOptions
}

// NewAnswerer returns an Answerer. Zero options fall back to 5 hits of 800
// characters.
func NewAnswerer(s *Searcher, llm anthropic.Client, opts AnswerOptions) *Answerer {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = 800
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Answerer{searcher: s, llm: llm, opts: opts}
}

// Answer detects the institution named in the question, searches its
// excerpts (or the whole index) and returns the model's answer with sources.
func (a *Answerer) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, eris.New("qa: empty question")
	}

	inst := DetectInstitution(question, a.searcher.Docs())
	hits, err := a.searcher.Search(ctx, question, inst, a.opts.TopK)
	if err != nil {
		return nil, err
	}

	user := "Question : " + question + "\n\nExtraits :\n" + BuildContext(hits, a.opts.ExcerptChars)
	resp, err := a.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		System:    anthropic.CachedSystem(SystemPrompt(inst)),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "qa: generate answer")
	}
	resp.Usage.Log(a.opts.Model, "qa")

	out := &Answer{Answer: resp.Text(), Institution: inst, Sources: make([]Source, len(hits))}
	for i, h := range hits {
		out.Sources[i] = Source{Doc: h.Doc, Page: h.Page, Score: h.Score}
	}
	zap.L().Info("qa: answered",
		zap.String("institution", inst),
		zap.Int("sources", len(hits)),
	)
	return out, nil
}
