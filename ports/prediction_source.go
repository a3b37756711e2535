package ports

import (
	"context"

	"gocombine/domain/prediction"
)

// PredictionSource provides the model points of a scan
type PredictionSource interface {
	LoadPoints(ctx context.Context) ([]prediction.Point, error)
}
