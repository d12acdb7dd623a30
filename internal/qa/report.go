package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/dashboard"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/pkg/anthropic"
)

// Disclaimer opens every generated report.
const Disclaimer = "Ce rapport a été généré automatiquement par une intelligence artificielle et doit être " +
	"interprété avec prudence. Il s'agit d'une analyse basée sur les données fournies, et toute décision " +
	"doit être complétée par une réflexion pédagogique et des échanges avec les équipes enseignantes."

// LocalContextChars caps the institution-supplied context sent to the model.
const LocalContextChars = 1500

const reportIntro = `Tu es un expert en éducation et en pilotage d'établissements français à l'étranger.
Ton objectif est d'aider un chef d'établissement à interpréter le suivi d'homologation de son établissement
et à identifier des pistes d'amélioration et de formation.
Tu dois fournir une analyse claire et structurée en adoptant un ton professionnel et neutre. Les éléments
factuels sur les données chiffrées doivent être présentés comme tels, les propositions de pistes d'actions
ou de réflexion sont à mettre au conditionnel pour renforcer ton rôle de conseiller.
N'inclus pas d'avertissement : il est ajouté automatiquement avant ton texte.`

const reportPlan = `
### Analyse
1. **Identification des tendances marquantes**
- Décris les principales forces et points à renforcer, en comparant chaque dimension à la moyenne du réseau.
2. **Interprétation**
- Quels facteurs pourraient expliquer ces résultats ?
3. **Pistes d'amélioration possibles**
- Quelles stratégies et quels ajustements pourraient être envisagés ?
4. **Besoins de formation pour les équipes**
- Quelles formations pourraient être recommandées sur la base des tendances observées ?`

// ReportOptions configures a Reporter.
type ReportOptions struct {
	Model     string
	MaxTokens int64
}

// Reporter writes an analysis report for one institution.
type Reporter struct {
	llm  anthropic.Client
	opts ReportOptions
}

// NewReporter returns a Reporter.
func NewReporter(llm anthropic.Client, opts ReportOptions) *Reporter {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Reporter{llm: llm, opts: opts}
}

// ReportPrompt builds the user prompt for sheet.
func ReportPrompt(sheet *dashboard.SheetView, localContext string) string {
	var b strings.Builder
	b.WriteString(reportIntro)
	fmt.Fprintf(&b, "\n\n# Rapport d'analyse pour l'établissement %s\n\n", sheet.Label)

	b.WriteString("### Contexte\n**Scores par dimension (établissement / moyenne réseau, sur 100) :**\n")
	for _, p := range sheet.Radar {
		fmt.Fprintf(&b, "- %s : %s / %s\n", p.Label, fmtScore(p.Institution), fmtScore(p.Network))
	}
	fmt.Fprintf(&b, "- Score global : %s\n", fmtScore(sheet.Global))

	fmt.Fprintf(&b, "\n**Points forts :** %s\n", strings.Join(sheet.Strengths, " ; "))
	fmt.Fprintf(&b, "**Points faibles :** %s\n", strings.Join(sheet.Weaknesses, " ; "))
	fmt.Fprintf(&b, "**Recommandations existantes :** %s\n", strings.Join(sheet.Recommendations, " ; "))

	if lc := strings.TrimSpace(localContext); lc != "" {
		fmt.Fprintf(&b, "\n**Informations spécifiques fournies par l'établissement :**\n%s\n", truncate(lc, LocalContextChars))
	}
	b.WriteString(reportPlan)
	return b.String()
}

func fmtScore(v *float64) string {
	if v == nil {
		return "non disponible"
	}
	return fmt.Sprintf("%.1f", *v)
}

// Report returns the disclaimer, in bold, followed by the model's analysis.
func (r *Reporter) Report(ctx context.Context, sheet *dashboard.SheetView, localContext string) (string, error) {
	if sheet == nil {
		return "", eris.New("qa: report: no institution")
	}
	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.opts.Model,
		MaxTokens: r.opts.MaxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: ReportPrompt(sheet, localContext)}},
	})
	if err != nil {
		return "", eris.Wrapf(err, "qa: report for %s", sheet.Name)
	}
	resp.Usage.Log(r.opts.Model, "report")
	zap.L().Info("qa: report generated", zap.String("institution", sheet.Name))

	return "> **" + Disclaimer + "**\n\n" + resp.Text(), nil
}
