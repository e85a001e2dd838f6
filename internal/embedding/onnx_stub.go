//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
)

var errNoCGO = errors.New("ONNX embeddings require CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXLoader stub when built without CGO (see onnx.go for the real implementation).
type ONNXLoader struct{}

// NewONNXLoader returns a loader whose dependency check always fails.
func NewONNXLoader(_ LoaderConfig) *ONNXLoader {
	return &ONNXLoader{}
}

func (l *ONNXLoader) Name() string { return string(ProviderONNX) }

func (l *ONNXLoader) CheckDependencies() error { return errNoCGO }

func (l *ONNXLoader) Load(_ context.Context, _ string) (Embedder, error) {
	return nil, fmt.Errorf("%w: %w", ErrDependencyMissing, errNoCGO)
}
