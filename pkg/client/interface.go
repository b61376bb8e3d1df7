package client

import (
	"context"

	"github.com/menta2k/leaf-doctor/pkg/types"
)

// Predictor classifies a normalized artifact. lang selects the language of
// any text the backend produces; backends that only return identifiers may
// ignore it.
type Predictor interface {
	Predict(ctx context.Context, artifact types.Artifact, lang string) (*types.Diagnosis, error)
}

// Pinger is implemented by backends that expose a liveness check.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// Describer is implemented by vision-model backends that can say in free
// text what they see, which shows whether images reach the model at all.
type Describer interface {
	Describe(ctx context.Context, artifact types.Artifact) (string, error)
}
