package logger

import (
	"go.uber.org/zap"

	"github.com/jsyadav90/abcd-backend2/internal/config"
)

// New builds the process logger. Development gets the human readable
// console encoder, everything else JSON.
func New(cfg *config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
