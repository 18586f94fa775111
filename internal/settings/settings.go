// Package settings holds the read contract against the out-of-scope
// external key-value store (spec.md §1, §2): the monitored extension set
// loaded at startup, and the meaningful-number filter rules that Open
// Question 3 asks to make configurable rather than hardcoded.
package settings

import "callcore/internal/config"

// MeaningfulNumberRules parameterizes the §4.3.3 predicate. Defaults match
// the original source's hardcoded dialplan so behavior is unchanged unless
// a deployment overrides them.
type MeaningfulNumberRules struct {
	DialplanContexts       map[string]struct{}
	PriorityArtifactPrefix string
	PriorityArtifactLength int
}

// DefaultMeaningfulNumberRules returns the original's hardcoded values:
// the dialplan context keywords s/h/i/t/o/a/e/start/hangup/invalid/timeout,
// and the "4-digit string starting with 5" priority-artifact filter.
func DefaultMeaningfulNumberRules() MeaningfulNumberRules {
	return MeaningfulNumberRules{
		DialplanContexts: dialplanContextSet([]string{
			"s", "h", "i", "t", "o", "a", "e", "start", "hangup", "invalid", "timeout",
		}),
		PriorityArtifactPrefix: "5",
		PriorityArtifactLength: 4,
	}
}

func dialplanContextSet(ctx []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ctx))
	for _, c := range ctx {
		set[c] = struct{}{}
	}
	return set
}

// FromConfig builds rules from a loaded config, falling back to defaults
// for anything left unset.
func FromConfig(cfg config.SettingsConfig) MeaningfulNumberRules {
	rules := DefaultMeaningfulNumberRules()
	if len(cfg.DialplanContexts) > 0 {
		rules.DialplanContexts = dialplanContextSet(cfg.DialplanContexts)
	}
	if cfg.PriorityArtifactPrefix != "" {
		rules.PriorityArtifactPrefix = cfg.PriorityArtifactPrefix
	}
	if cfg.PriorityArtifactLength > 0 {
		rules.PriorityArtifactLength = cfg.PriorityArtifactLength
	}
	return rules
}

// MonitoredExtensions returns the startup-seeded set of extensions the
// correlator should create Extension entries for (spec.md §3 Extension
// lifecycle: "created when first seen in the monitored set").
func MonitoredExtensions(cfg config.SettingsConfig) []string {
	return cfg.MonitoredExtensions
}
