package sem

import (
	"time"

	"go.uber.org/zap"
)

type Instrument struct {
	RecordTime func(fnName string, duration time.Duration)
}

func RecordTimer(name string, instrument []Instrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func debugLoggerInstrumentation(logger *zap.Logger) *Instrument {
	return &Instrument{
		RecordTime: func(fnName string, duration time.Duration) {
			logger.Debug("link", zap.String("op", fnName), zap.Int64("millis", duration.Milliseconds()))
		},
	}
}
