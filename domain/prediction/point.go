package prediction

import "gocombine/domain/core"

// Point is one model point: the predictions of every matched analysis for
// a single parameter choice.
type Point struct {
	ID          core.PointID
	Predictions []Prediction
}

// Clone deep-copies the point so a worker can own it.
func (p Point) Clone() Point {
	return Point{ID: p.ID, Predictions: Clone(p.Predictions)}
}
