package embedding

import (
	"sync"

	"go.uber.org/zap"
)

// Status is a snapshot of whether embeddings can be produced.
type Status struct {
	Available bool   `json:"available"`
	Provider  string `json:"provider,omitempty"`
	ModelID   string `json:"model,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Capability is the process-wide answer to "can we embed?". It is decided once
// at startup and can only move from available to unavailable afterwards.
type Capability struct {
	mu     sync.RWMutex
	status Status
	logger *zap.Logger
}

// CheckCapability runs the loader's dependency check without loading a model.
func CheckCapability(enabled bool, loader Loader, modelID string, logger *zap.Logger) *Capability {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Capability{logger: logger, status: Status{ModelID: modelID}}
	switch {
	case !enabled:
		c.status.Reason = "embeddings disabled in configuration"
	case loader == nil:
		c.status.Reason = "no embedding backend configured"
	default:
		c.status.Provider = loader.Name()
		if err := loader.CheckDependencies(); err != nil {
			c.status.Reason = err.Error()
		} else {
			c.status.Available = true
		}
	}
	if c.status.Available {
		logger.Info("embeddings available", zap.String("provider", c.status.Provider), zap.String("model", modelID))
	} else {
		logger.Warn("embeddings unavailable, related items will be hidden", zap.String("reason", c.status.Reason))
	}
	return c
}

// NewCapability returns a capability with a fixed initial status.
func NewCapability(s Status) *Capability {
	return &Capability{status: s, logger: zap.NewNop()}
}

// Available reports whether embeddings can currently be produced.
func (c *Capability) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Available
}

// Status returns a snapshot.
func (c *Capability) Status() Status {
	if c == nil {
		return Status{Reason: "no embedding capability"}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Disable marks embeddings unavailable for the rest of the process.
func (c *Capability) Disable(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.Available {
		return
	}
	c.status.Available = false
	c.status.Reason = reason
	c.logger.Warn("embeddings disabled", zap.String("reason", reason))
}

// Observe disables the capability when err is permanent. It returns true if
// err was permanent.
func (c *Capability) Observe(err error) bool {
	if err == nil || !IsPermanent(err) {
		return false
	}
	c.Disable(err.Error())
	return true
}
