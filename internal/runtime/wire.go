package runtime

import (
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/engine"
	"github.com/jholdgaard/subastamon/internal/security"
)

// SecurityConfigFrom translates the YAML-facing config.SecurityConfig
// into the domain-facing security.Config the policy engine evaluates
// against. The two structs name the same five knobs differently: one
// matches the config file's vocabulary, the other the policy's.
func SecurityConfigFrom(c config.SecurityConfig) security.Config {
	return security.Config{
		MaxErrorStreak:           c.MaxStreak,
		MinErrorStreakForBackoff: c.MinStreakForBackoff,
		BackoffMultiplier:        c.BackoffFactor,
		MaxPollSeconds:           c.CadenceCeilingS,
		MaxMinutesWithoutOK:      c.InactivityCeilingMin,
	}
}

// EngineConfigFrom assembles engine.Config from the slices of the
// top-level config that the engine cares about: commercial defaults,
// the aggregate log window, and the collector's base cadence (the
// engine needs this to recognize a BACKOFF decision as an actual
// increase over the current poll interval).
func EngineConfigFrom(c *config.Config) engine.Config {
	return engine.Config{
		DefaultMinMarginPct:       c.Commercial.DefaultMinMarginPct,
		DefaultHideBelowThreshold: c.Commercial.DefaultHideBelowThreshold,
		AggWindowSeconds:          c.Engine.AggWindowSeconds,
		BaseCadenceSeconds:        c.Collector.BaseCadenceSeconds,
	}
}
