package config

import (
	"errors"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Flag names. Engine flags are read once when the runtime is built, job
// flags when the worker registers its jobs.
const (
	FeatureEngineScoring = "engine.scoring"
	FeatureEngineDaily   = "engine.daily_challenge"

	FeatureJobBadgeBackfill      = "jobs.badge_backfill"
	FeatureJobLeaderboardRebuild = "jobs.leaderboard_rebuild"
)

var (
	ErrFeatureNotFound       = errors.New("feature: not found")
	ErrInvalidRolloutPercent = errors.New("feature: rollout percent must be 0-100")
)

// Feature is one flag. Rollout 100 means on for everyone, 0 means off.
type Feature struct {
	Name        string
	Description string
	Rollout     int
}

// Enabled reports whether the flag is on for at least some users.
func (f Feature) Enabled() bool { return f.Rollout > 0 }

// FeatureContext identifies the user a partially rolled-out flag is checked for.
type FeatureContext struct {
	UserID string
}

// FeatureFlags holds the flags and per-user overrides. Safe for concurrent use.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]Feature
	overrides map[string]bool // key: userID + "\x00" + feature
}

// LoadFeatureFlags starts from every flag on and applies FEATURE_* variables.
// A variable holds a bool or a rollout percent:
//
//	FEATURE_ENGINE_SCORING=false
//	FEATURE_ENGINE_DAILY_CHALLENGE=50
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features: map[string]Feature{
			FeatureEngineScoring:         {Name: FeatureEngineScoring, Description: "apply scoring rules to graded submissions"},
			FeatureEngineDaily:           {Name: FeatureEngineDaily, Description: "track daily challenge tasks"},
			FeatureJobBadgeBackfill:      {Name: FeatureJobBadgeBackfill, Description: "retroactive badge sweep"},
			FeatureJobLeaderboardRebuild: {Name: FeatureJobLeaderboardRebuild, Description: "rebuild the Redis coin leaderboard"},
		},
		overrides: make(map[string]bool),
	}
	for name, f := range ff.features {
		f.Rollout = rolloutFromEnv(envKey(name), 100)
		ff.features[name] = f
	}
	return ff
}

// envKey maps "engine.daily_challenge" to "FEATURE_ENGINE_DAILY_CHALLENGE".
func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

func rolloutFromEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if on, err := strconv.ParseBool(raw); err == nil {
		if on {
			return 100
		}
		return 0
	}
	if p, err := strconv.Atoi(raw); err == nil && p >= 0 && p <= 100 {
		return p
	}
	return def
}

// IsEnabled evaluates a flag. Without a user, only a full rollout counts.
func (ff *FeatureFlags) IsEnabled(name string, fc *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	userID := ""
	if fc != nil {
		userID = fc.UserID
	}
	if userID != "" {
		if on, ok := ff.overrides[userID+"\x00"+name]; ok {
			return on
		}
	}

	f, ok := ff.features[name]
	switch {
	case !ok || f.Rollout <= 0:
		return false
	case f.Rollout >= 100:
		return true
	case userID == "":
		return false
	}
	return bucket(name, userID) < f.Rollout
}

// bucket places a user in 0..99, stable per flag.
func bucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// SetUserOverride forces a flag on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, name string, on bool) {
	ff.mu.Lock()
	ff.overrides[userID+"\x00"+name] = on
	ff.mu.Unlock()
}

// SetRolloutPercent changes a flag's rollout.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	f.Rollout = percent
	ff.features[name] = f
	return nil
}

// EnableFeature rolls a flag out to everyone.
func (ff *FeatureFlags) EnableFeature(name string) error {
	return ff.SetRolloutPercent(name, 100)
}

// All returns the flags ordered by name.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
