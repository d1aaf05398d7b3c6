// Package logging constructs the zap logger used across the kernel
// runner, tick loop, drivers, and HTTP facade — pure stages never log
// (spec.md §4.4); only side-effecting code does.
package logging

import "go.uber.org/zap"

// New builds a production or development zap logger depending on debug.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
