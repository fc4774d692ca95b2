// Package featureflags evaluates the FEATURE_FLAGS rollout list.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags consulted by the application.
const (
	RealtimeFeed = "realtime_feed"
	WebPPreviews = "webp_previews"
)

// Known lists the flags the application reads. They are always present in a
// Snapshot, off unless configured.
func Known() []string {
	return []string{RealtimeFeed, WebPPreviews}
}

// rule is one configured flag: its text as written and the share of users,
// 0..100, that see it on.
type rule struct {
	raw     string
	percent int
}

// Manager holds flags parsed from a list such as
// "realtime_feed=on,webp_previews=25%". Values are on/true/1, off/false/0
// or N%. Anything else is kept for display and evaluates off.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		rules[key] = rule{raw: value, percent: parsePercent(value)}
	}
	return &Manager{rules: rules}
}

func parsePercent(value string) int {
	switch value {
	case "on", "true", "1":
		return 100
	case "off", "false", "0":
		return 0
	}
	digits, ok := strings.CutSuffix(value, "%")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return min(max(n, 0), 100)
}

// Enabled reports whether name is on for userID. Partial rollouts pick a
// stable bucket per user; anonymous callers only see fully enabled flags.
func (m *Manager) Enabled(name, userID string) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == "":
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// Raw returns the configured values as written.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates the configured and the known flags for one user.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range Known() {
		out[name] = m.Enabled(name, userID)
	}
	if m != nil {
		for name := range m.rules {
			out[name] = m.Enabled(name, userID)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rolloutBucket maps a flag and user to 0..99.
func rolloutBucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
