package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles for allocation, storage and status
// behaviour. Flags are read from FEATURE_<NAME> environment variables and can
// be flipped at runtime.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// Keep admin overrides through allocation reruns. Off restores the
	// behaviour where every rerun recomputes all allocations.
	FeatureAllocationPreserveOverrides = "allocation.preserve_overrides"

	// Reject saves made from a stale snapshot instead of overwriting.
	FeatureStoreOptimisticLocking = "store.optimistic_locking"

	// Compute the status-card rank from marks on every request instead of
	// trusting the stored rank.
	FeatureStatusLiveRank = "status.live_rank"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features: make(map[string]*Feature),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureAllocationPreserveOverrides] = &Feature{
		Name:        FeatureAllocationPreserveOverrides,
		Description: "Keep admin allocation overrides through reruns",
		Enabled:     true,
	}

	ff.features[FeatureStoreOptimisticLocking] = &Feature{
		Name:        FeatureStoreOptimisticLocking,
		Description: "Reject writes made from a stale snapshot",
		Enabled:     false,
	}

	ff.features[FeatureStatusLiveRank] = &Feature{
		Name:        FeatureStatusLiveRank,
		Description: "Recompute status-card rank from marks",
		Enabled:     true,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false
// Example: FEATURE_ALLOCATION_PRESERVE_OVERRIDES=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		if val := os.Getenv(featureNameToEnvKey(name)); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "status.live_rank" -> "FEATURE_STATUS_LIVE_RANK"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// SetEnabled flips a feature at runtime.
func (ff *FeatureFlags) SetEnabled(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// EnableFeature turns a feature on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetEnabled(featureName, true)
}

// DisableFeature turns a feature off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetEnabled(featureName, false)
}

// GetAllFeatures returns copies of all features sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, v := range ff.features {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Convenience methods for common checks ---

// PreserveOverrides reports whether allocation keeps admin overrides.
func (ff *FeatureFlags) PreserveOverrides() bool {
	return ff.IsEnabled(FeatureAllocationPreserveOverrides)
}

// LiveRank reports whether status cards recompute rank from marks.
func (ff *FeatureFlags) LiveRank() bool {
	return ff.IsEnabled(FeatureStatusLiveRank)
}

// --- Errors ---

var (
	ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
