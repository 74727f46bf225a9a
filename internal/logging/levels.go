// internal/logging/levels.go
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits one step below Debug. The stores log scroll cursors and
// translated filters at this level.
const TraceLevel = zapcore.Level(-2)

// LevelFromString maps a --log-level value to a zap level. It accepts the
// zap names plus "trace" and "warning", in any case.
func LevelFromString(level string) (zapcore.Level, error) {
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(name)); err != nil {
			return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
		}
		return l, nil
	}
}
