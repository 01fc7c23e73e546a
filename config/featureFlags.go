package config

import (
	"os"
	"strings"
)

// DefaultMatchingMode is the fallback candidate-matching mode used when a
// tenant has no engine_mode setting row yet.
//
// Set via env:
// - MATCHING_ENGINE_MODE=legacy|hierarchical
func DefaultMatchingMode() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("MATCHING_ENGINE_MODE")))
	if v == "hierarchical" {
		return "hierarchical"
	}
	return "legacy"
}

// NotifyDirectProcessing controls whether the in-process notification outbox
// dispatcher marks rows delivered without Pub/Sub (local/dev environments).
//
// Set via env:
// - NOTIFY_DIRECT_PROCESSING=true|false (default: true, safety-net delivery)
func NotifyDirectProcessing() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("NOTIFY_DIRECT_PROCESSING")))
	if val == "false" {
		return false
	}
	return true
}
