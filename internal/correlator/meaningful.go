package correlator

import (
	"regexp"
	"strconv"
	"strings"

	"callcore/internal/settings"
)

// extensionPattern extracts the digit run between the first "/" and the
// first "-" in a channel name, e.g. PJSIP/110-0000001a -> "110" (spec.md
// §4.3.2).
var extensionPattern = regexp.MustCompile(`/(\d+)-`)

// extensionFromChannel returns the owning extension for a channel name, or
// "" if the channel is a trunk/system channel (non-digit prefix such as
// PJSIP/sbc-... or PJSIP/asterisk-...).
func extensionFromChannel(channel string) string {
	m := extensionPattern.FindStringSubmatch(channel)
	if m == nil {
		return ""
	}
	return m[1]
}

// extensionFromInterface returns the last "/"-delimited segment of a queue
// member Interface such as "PJSIP/200" (no channel suffix, so
// extensionPattern's trailing dash never matches one), taken verbatim from
// original_source/backend/ami.py's agent_member.split('/')[-1].
func extensionFromInterface(iface string) string {
	if iface == "" {
		return ""
	}
	idx := strings.LastIndex(iface, "/")
	if idx == -1 {
		return iface
	}
	return iface[idx+1:]
}

// isTrunkOrSystemChannel reports whether channel denotes a trunk or system
// leg rather than an internal extension (spec.md §4.3.2, §4.3.5 point 4).
func isTrunkOrSystemChannel(channel string) bool {
	return extensionFromChannel(channel) == ""
}

// isMeaningfulNumber implements the §4.3.3 predicate: non-empty, all-digit
// (or a *-prefixed feature code), not a dialplan context keyword, longer
// than two characters, and not a site-specific priority artifact (the
// 4-digit-starting-with-5 case made configurable per Open Question 3).
func isMeaningfulNumber(value string, rules settings.MeaningfulNumberRules) bool {
	if value == "" {
		return false
	}
	if len(value) <= 2 {
		return false
	}

	digits := value
	if strings.HasPrefix(value, "*") {
		digits = value[1:]
		if digits == "" {
			return false
		}
	}
	if !isAllDigits(digits) {
		return false
	}

	if _, isContext := rules.DialplanContexts[strings.ToLower(value)]; isContext {
		return false
	}

	if rules.PriorityArtifactLength > 0 && len(value) == rules.PriorityArtifactLength &&
		strings.HasPrefix(value, rules.PriorityArtifactPrefix) && isAllDigits(value) {
		return false
	}

	return true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isInternalLooking reports whether a number looks like an internal
// extension (all-digit, length 3-5) as used by §4.4.1 direction rules and
// §4.5 callee detection.
func isInternalLooking(s string) bool {
	return isAllDigits(s) && len(s) >= 3 && len(s) <= 5
}

// mapCauseToStatus implements the §4.4.1 step-6 table, taken verbatim from
// original_source/backend/ami.py's map_cause_to_status.
func mapCauseToStatus(cause string) string {
	switch cause {
	case "16":
		return "completed"
	case "17":
		return "busy"
	case "18", "19", "127":
		return "noanswer"
	case "20":
		return "switched_off"
	case "21", "31":
		return "failed"
	case "28", "34":
		return "invalid_number"
	case "0":
		return "busy"
	default:
		return "failed"
	}
}

// dialStatusOverride applies the dial-status override half of the §4.4.1
// step-6 table: certain DialStatus values take priority over the raw cause
// mapping.
func dialStatusOverride(dialStatus, causeMapped string) string {
	switch strings.ToUpper(dialStatus) {
	case "ANSWER":
		return "completed"
	case "BUSY":
		return "busy"
	case "NOANSWER", "CANCEL":
		return "noanswer"
	case "CONGESTION", "CHANUNAVAIL":
		return "failed"
	default:
		return causeMapped
	}
}

// formatDuration renders seconds as HH:MM:SS per spec.md §4.4.1 step 7.
func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return pad2(h) + ":" + pad2(m) + ":" + pad2(s)
}

func pad2(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
