package scorer

import "github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"

// Policy names one field-normalization rule.
type Policy uint8

const (
	PolicyPercent Policy = iota + 1
	PolicyPresence
	PolicyStatus
	PolicyDictionary
	PolicyList
	PolicyKeyword
	PolicyCountRatio
)

// String returns the policy name used in methodology output.
func (p Policy) String() string {
	switch p {
	case PolicyPercent:
		return "percent"
	case PolicyPresence:
		return "presence"
	case PolicyStatus:
		return "status"
	case PolicyDictionary:
		return "dictionary"
	case PolicyList:
		return "list"
	case PolicyKeyword:
		return "keyword"
	case PolicyCountRatio:
		return "count_ratio"
	default:
		return "unknown"
	}
}

// Dictionary names referenced by sub-indicators.
const (
	DictInclusion          = "inclusion"
	DictOrientation        = "orientation"
	DictRessourcesHumaines = "ressources_humaines"
)

// SubIndicator binds one raw column to a dimension through a policy.
type SubIndicator struct {
	Name       string
	Label      string
	Column     string
	Dimension  model.Dimension
	Policy     Policy
	Dictionary string
}

// SubIndicators is the fixed dimension table.
var SubIndicators = []SubIndicator{
	{Name: "dnb", Label: "Taux de réussite au DNB 2024", Column: "dnb_2024", Dimension: model.DimResultats, Policy: PolicyPercent},
	{Name: "bac", Label: "Taux de réussite au Bac 2024", Column: "bac_2024", Dimension: model.DimResultats, Policy: PolicyPercent},

	{Name: "projet_status", Label: "Statut du projet d'établissement", Column: "projet_etablissement_status", Dimension: model.DimGouvernance, Policy: PolicyStatus},
	{Name: "ppms", Label: "Statut du PPMS", Column: "ppms_status", Dimension: model.DimGouvernance, Policy: PolicyStatus},
	{Name: "instances", Label: "Fonctionnement des instances", Column: "instances_status", Dimension: model.DimGouvernance, Policy: PolicyStatus},

	{Name: "projet_axes", Label: "Axes du projet d'établissement", Column: "projet_etablissement_axes", Dimension: model.DimStrategie, Policy: PolicyList},
	{Name: "partenariats", Label: "Existence de partenariats", Column: "partenariats", Dimension: model.DimStrategie, Policy: PolicyPresence},
	{Name: "orientation", Label: "Orientation post-bac", Column: "orientation_post_bac", Dimension: model.DimStrategie, Policy: PolicyDictionary, Dictionary: DictOrientation},

	{Name: "inclusion", Label: "Dispositif d'inclusion", Column: "inclusion_dispositif", Dimension: model.DimClimat, Policy: PolicyDictionary, Dictionary: DictInclusion},

	{Name: "lve", Label: "Nombre de langues vivantes", Column: "nb_lve", Dimension: model.DimLinguistique, Policy: PolicyCountRatio},
	{Name: "certifications", Label: "Certifications linguistiques", Column: "certifications", Dimension: model.DimLinguistique, Policy: PolicyList},

	{Name: "infrastructures", Label: "Infrastructures mentionnées", Column: "infrastructures", Dimension: model.DimRessources, Policy: PolicyKeyword},
	{Name: "ressources_humaines", Label: "Ressources humaines", Column: "ressources_humaines", Dimension: model.DimRessources, Policy: PolicyDictionary, Dictionary: DictRessourcesHumaines},
}

// IndicatorsFor returns the sub-indicators of d in table order.
func IndicatorsFor(d model.Dimension) []SubIndicator {
	var out []SubIndicator
	for _, ind := range SubIndicators {
		if ind.Dimension == d {
			out = append(out, ind)
		}
	}
	return out
}

// RequiredColumns lists the raw columns read by the scorer.
func RequiredColumns() []string {
	cols := make([]string, 0, len(SubIndicators))
	for _, ind := range SubIndicators {
		cols = append(cols, ind.Column)
	}
	return cols
}
