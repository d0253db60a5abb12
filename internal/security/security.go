// Package security implements the operator's error-streak backoff
// policy: a pure function of observed metrics that decides whether
// collection should continue, slow down, pause, stop, or merely alert.
// It makes no requests and renders no UI.
package security

import (
	"strings"
	"time"
)

// Action is a suggested response to observed collector health.
type Action string

const (
	ActionNone    Action = "NONE"
	ActionBackoff Action = "BACKOFF"
	ActionPause   Action = "PAUSE"
	ActionStop    Action = "STOP"
	ActionAlert   Action = "ALERT"
)

// Decision is the result of evaluating the policy once.
type Decision struct {
	Action         Action
	Message        string
	NewPollSeconds *float64
}

// Config holds the policy's tunable thresholds.
type Config struct {
	MaxErrorStreak         int
	MaxMinutesWithoutOK    float64
	BackoffMultiplier      float64
	MaxPollSeconds         float64
	BackoffOnHTTP0Timeout  bool
	MinErrorStreakForBackoff int
}

// DefaultConfig returns the policy defaults named in spec.md §4.3/§6.
func DefaultConfig() Config {
	return Config{
		MaxErrorStreak:           10,
		MaxMinutesWithoutOK:      5,
		BackoffMultiplier:        2.0,
		MaxPollSeconds:           30.0,
		BackoffOnHTTP0Timeout:    false,
		MinErrorStreakForBackoff: 2,
	}
}

// Input bundles the metrics the policy evaluates on each tick.
type Input struct {
	CurrentPollSeconds float64
	ErrStreak          int
	LastOKAt           *time.Time
	HTTPStatus         int
	Message            string
	Now                time.Time
}

func isTimeoutMessage(msg string) bool {
	return containsFold(msg, "timeout") || containsFold(msg, "abort")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// Evaluate decides an Action from the current metrics, in the exact
// priority order: explicit end-of-auction message, current HTTP error
// (with the HTTP=0 timeout carve-out and the error-streak thresholds),
// then prolonged inactivity with no HTTP error, then steady state.
func Evaluate(cfg Config, in Input) Decision {
	if containsFold(in.Message, "finalizada") {
		return Decision{Action: ActionStop, Message: "auction end detected"}
	}

	if in.HTTPStatus != 200 {
		isHTTP0Timeout := in.HTTPStatus == 0 && isTimeoutMessage(in.Message)
		if isHTTP0Timeout && !cfg.BackoffOnHTTP0Timeout {
			return Decision{Action: ActionAlert, Message: "transient HTTP 0 timeout (no backoff)"}
		}

		if in.ErrStreak >= cfg.MaxErrorStreak {
			return Decision{Action: ActionStop, Message: "too many consecutive HTTP errors"}
		}

		minStreak := cfg.MinErrorStreakForBackoff
		if minStreak < 1 {
			minStreak = 1
		}
		if in.ErrStreak < minStreak {
			return Decision{Action: ActionAlert, Message: "transient HTTP error, streak below backoff threshold"}
		}

		newPoll := in.CurrentPollSeconds * cfg.BackoffMultiplier
		if newPoll > cfg.MaxPollSeconds {
			newPoll = cfg.MaxPollSeconds
		}
		return Decision{Action: ActionBackoff, Message: "HTTP error, applying backoff", NewPollSeconds: &newPoll}
	}

	if in.LastOKAt != nil {
		delta := in.Now.Sub(*in.LastOKAt)
		if delta > time.Duration(cfg.MaxMinutesWithoutOK*float64(time.Minute)) {
			return Decision{Action: ActionPause, Message: "no valid data for too long"}
		}
	}

	return Decision{Action: ActionNone, Message: "normal"}
}
