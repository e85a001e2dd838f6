package embedding

import "errors"

var (
	// ErrDependencyMissing means the runtime a backend needs is absent. It is
	// permanent for the lifetime of the process.
	ErrDependencyMissing = errors.New("embedding dependency missing")
	// ErrModelLoadFailed means the model could not be loaded. It is permanent
	// for the Generator that reported it.
	ErrModelLoadFailed = errors.New("embedding model load failed")
	// ErrEncodeFailed means a single text could not be embedded.
	ErrEncodeFailed = errors.New("embedding encode failed")
)

// IsPermanent reports whether err disables embeddings for the rest of the process.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDependencyMissing) || errors.Is(err, ErrModelLoadFailed)
}
