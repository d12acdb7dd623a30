package dashboard

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// Coordinate columns of the source table.
const (
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
)

// ErrUnknownMetric is returned for a map metric that is not a score column.
var ErrUnknownMetric = eris.New("dashboard: unknown metric")

// Metrics lists the selectable map metrics: the global score, then every
// dimension score.
func Metrics() []string {
	out := []string{model.ColScoreGlobal}
	for _, d := range model.Dimensions {
		out = append(out, d.ScoreColumn())
	}
	return out
}

func metricValue(r model.ScoredRecord, metric string) (*float64, error) {
	if metric == model.ColScoreGlobal {
		return r.Global, nil
	}
	for _, d := range model.Dimensions {
		if d.ScoreColumn() == metric {
			return r.Dimensions[d], nil
		}
	}
	return nil, eris.Wrapf(ErrUnknownMetric, "metric %q", metric)
}

func coordinates(r model.Record) (lon, lat float64, ok bool) {
	lat, okLat := r.Get(ColLatitude).Float()
	lon, okLon := r.Get(ColLongitude).Float()
	if !okLat || !okLon || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lon, lat, true
}

// Map returns a GeoJSON FeatureCollection of the institutions that carry
// valid coordinates. Each feature holds the name, the chosen metric and the
// global score. An empty metric selects the global score.
func Map(records []model.ScoredRecord, metric string) (*geojson.FeatureCollection, error) {
	if metric == "" {
		metric = model.ColScoreGlobal
	}
	if _, err := metricValue(model.ScoredRecord{}, metric); err != nil {
		return nil, err
	}

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	var bounds *geom.Bounds
	for _, r := range records {
		lon, lat, ok := coordinates(r.Raw)
		if !ok {
			continue
		}
		value, _ := metricValue(r, metric)
		pt := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.Name(),
			Geometry: pt,
			Properties: map[string]interface{}{
				"etablissement":      r.Name(),
				"label":              Label(r.Raw),
				"metric":             metric,
				"value":              value,
				model.ColScoreGlobal: r.Global,
			},
		})
		if bounds == nil {
			bounds = geom.NewBounds(geom.XY)
		}
		bounds.Extend(pt)
	}
	fc.BBox = bounds
	return fc, nil
}
