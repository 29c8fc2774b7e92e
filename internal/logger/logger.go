package logger

import (
	"go.uber.org/zap"
)

// Logger wraps a sugared zap logger so services don't depend on zap directly.
type Logger struct {
	*zap.SugaredLogger
}

func New(environment string) (*Logger, error) {
	var (
		l   *zap.Logger
		err error
	)

	if environment == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	return &Logger{l.Sugar()}, nil
}

func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}
