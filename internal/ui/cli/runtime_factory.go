package cli

import (
	coreapp "repoctx/internal/core/app"
	"repoctx/internal/core/config"
)

type appFactory interface {
	New(cfg *config.Config) (*coreapp.App, error)
}

type defaultAppFactory struct{}

func (defaultAppFactory) New(cfg *config.Config) (*coreapp.App, error) {
	return coreapp.New(cfg)
}
