// Package logging provides zap logger construction and log sanitization
// helpers for atelier-engine.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process logger for the given environment. Production
// gets JSON output at info level; everything else gets the development
// console encoder at debug level.
func New(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
