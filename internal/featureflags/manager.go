// Package featureflags evaluates flags configured through FEATURE_FLAGS.
package featureflags

import (
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// FaceVerification gates the face-verification endpoints.
const FaceVerification = "face_verification"

// Manager evaluates flags from a comma-separated key=value list, for example
// "face_verification=on,new_feed=25%,legacy_ui=off".
type Manager struct {
	flags map[string]string
}

func NewManager(raw string) *Manager {
	out := make(map[string]string)
	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return &Manager{flags: out}
}

// Enabled reports whether name is on for userID. Values are on/true/1,
// off/false/0, or N% for a rollout that is stable per user. Percentage
// rollouts are off for anonymous callers.
func (m *Manager) Enabled(name, userID string) bool {
	if m == nil {
		return false
	}
	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, ok := strings.CutSuffix(value, "%")
	if !ok {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	switch {
	case err != nil || pct <= 0:
		return false
	case pct >= 100:
		return true
	case userID == "":
		return false
	}
	return rolloutBucket(name, userID) < pct
}

// Raw returns a copy of the configured flags.
func (m *Manager) Raw() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m.flags)
}

// Snapshot evaluates every flag for one user.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := map[string]bool{}
	if m == nil {
		return out
	}
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
