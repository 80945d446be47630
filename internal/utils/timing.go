// Package utils holds small helpers shared by the pipeline stages.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowStage is the duration above which a stage is logged at warn level.
const SlowStage = 30 * time.Second

// StageTimer provides a defer-friendly way to log how long a stage took.
//
// Usage:
//
//	defer utils.StageTimer("measure", log)()
func StageTimer(stage string, log zerolog.Logger) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		event := log.Debug()
		if duration > SlowStage {
			event = log.Warn()
		}
		event.
			Str("stage", stage).
			Dur("duration_ms", duration).
			Msg("Stage completed")

		return duration
	}
}
