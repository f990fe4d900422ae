package cfg

import (
	"errors"
	"sync"
)

var (
	loader     Loader
	loaderOnce sync.Once
)

// Loader produces the process configuration.
type Loader interface {
	Load() (*Config, error)
}

// NewLoader registers l as the process-wide loader. Only the first call wins.
func NewLoader(l Loader) (Loader, error) {
	if l == nil {
		return nil, errors.New("[ERROR][CONFIG] loader is nil")
	}
	loaderOnce.Do(func() {
		loader = l
	})
	return loader, nil
}
