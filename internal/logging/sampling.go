// internal/logging/sampling.go
package logging

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// newSampledCore gives every level below Error that has an entry in
// cfg.Levels its own sampler. Error and above, and levels without an
// entry, are written unsampled. A batch add that logs one debug line per
// page therefore cannot drown out the warnings around it.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}
	tick := cfg.Tick.Duration()
	if tick <= 0 {
		tick = time.Second
	}

	sampled := func(lvl zapcore.Level) bool {
		_, ok := cfg.Levels[lvl]
		return ok && lvl < zapcore.ErrorLevel
	}
	cores := []zapcore.Core{
		&levelFilterCore{Core: core, keep: func(lvl zapcore.Level) bool { return !sampled(lvl) }},
	}
	for lvl, rate := range cfg.Levels {
		if !sampled(lvl) {
			continue
		}
		only := lvl
		cores = append(cores, zapcore.NewSamplerWithOptions(
			&levelFilterCore{Core: core, keep: func(l zapcore.Level) bool { return l == only }},
			tick, rate.Initial, rate.Thereafter,
		))
	}
	return zapcore.NewTee(cores...)
}

// levelFilterCore passes only the levels keep accepts.
type levelFilterCore struct {
	zapcore.Core
	keep func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.keep(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.keep(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), keep: c.keep}
}
