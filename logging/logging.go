package logging

import (
	"go.uber.org/zap"
)

// New builds the application logger. Anything other than "development"
// yields the production JSON configuration.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
