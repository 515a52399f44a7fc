package config

import (
	"errors"
	"fmt"
	"strings"

	findallerrors "github.com/standardbeagle/findall/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults fills zero values with defaults, then rejects
// values that cannot work.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setSmartDefaults(cfg)

	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return findallerrors.NewConfigError("project", cfg.Project.Root, err)
	}

	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return findallerrors.NewConfigError("index", "", err)
	}

	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return findallerrors.NewConfigError("performance", "", err)
	}

	if err := v.validateSearchConfig(&cfg.Search); err != nil {
		return findallerrors.NewConfigError("search", "", err)
	}

	if err := v.validateActivityConfig(&cfg.Activity); err != nil {
		return findallerrors.NewConfigError("activity", "", err)
	}

	if err := v.validateStorageConfig(&cfg.Storage); err != nil {
		return findallerrors.NewConfigError("storage.backend", cfg.Storage.Backend, err)
	}

	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}
	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", index.MaxFileSize)
	}
	if index.MaxFileCount <= 0 {
		return fmt.Errorf("MaxFileCount must be positive, got %d", index.MaxFileCount)
	}
	if index.BatchSize <= 0 {
		return fmt.Errorf("BatchSize must be positive, got %d", index.BatchSize)
	}
	if index.CooldownMs < 0 || index.WatchDebounceMs < 0 || index.IgnoreCheckDebounceMs < 0 {
		return errors.New("debounce and cooldown windows cannot be negative")
	}
	if index.ReextractPerSecond < 0 {
		return fmt.Errorf("ReextractPerSecond cannot be negative, got %v", index.ReextractPerSecond)
	}
	return nil
}

func (v *Validator) validatePerformanceConfig(perf *Performance) error {
	// ParallelFileWorkers: 0 means auto-detect
	if perf.ParallelFileWorkers < 0 {
		return fmt.Errorf("ParallelFileWorkers cannot be negative, got %d", perf.ParallelFileWorkers)
	}
	if perf.MaxConcurrentFileOps <= 0 {
		return fmt.Errorf("MaxConcurrentFileOps must be positive, got %d", perf.MaxConcurrentFileOps)
	}
	if perf.IndexingTimeoutSec < 0 {
		return fmt.Errorf("IndexingTimeoutSec cannot be negative, got %d", perf.IndexingTimeoutSec)
	}
	return nil
}

func (v *Validator) validateSearchConfig(search *Search) error {
	if search.MaxResults < 0 {
		return fmt.Errorf("MaxResults cannot be negative, got %d", search.MaxResults)
	}
	if search.PersonalizationWeight < 0 || search.PersonalizationWeight > 1 {
		return fmt.Errorf("PersonalizationWeight must be within [0, 1], got %v", search.PersonalizationWeight)
	}
	if search.MaxTextFileSize <= 0 {
		return fmt.Errorf("MaxTextFileSize must be positive, got %d", search.MaxTextFileSize)
	}
	return nil
}

func (v *Validator) validateActivityConfig(activity *Activity) error {
	if activity.RetentionDays <= 0 {
		return fmt.Errorf("RetentionDays must be positive, got %d", activity.RetentionDays)
	}
	if activity.SaveIntervalSec <= 0 {
		return fmt.Errorf("SaveIntervalSec must be positive, got %d", activity.SaveIntervalSec)
	}
	return nil
}

func (v *Validator) validateStorageConfig(storage *Storage) error {
	switch storage.Backend {
	case BackendJSON, BackendSQLite, BackendBadger, BackendMemory:
		return nil
	}
	return fmt.Errorf("unknown backend, expected one of %s", strings.Join([]string{BackendJSON, BackendSQLite, BackendBadger, BackendMemory}, ", "))
}

// setSmartDefaults replaces zero values that have an obvious default
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Index.MaxFileSize == 0 {
		cfg.Index.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Index.MaxFileCount == 0 {
		cfg.Index.MaxFileCount = DefaultMaxFileCount
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = DefaultBatchSize
	}
	if cfg.Performance.MaxConcurrentFileOps == 0 {
		cfg.Performance.MaxConcurrentFileOps = DefaultMaxConcurrentFileOps
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = DefaultMaxResults
	}
	if cfg.Search.MaxTextFileSize == 0 {
		cfg.Search.MaxTextFileSize = DefaultMaxTextFileSize
	}
	if cfg.Search.MaxTextResults == 0 {
		cfg.Search.MaxTextResults = DefaultMaxTextResults
	}
	if cfg.Search.RouteCacheSize == 0 {
		cfg.Search.RouteCacheSize = DefaultRouteCacheSize
	}
	if cfg.Activity.SaveIntervalSec == 0 {
		cfg.Activity.SaveIntervalSec = DefaultSaveIntervalSec
	}
	if cfg.Activity.RetentionDays == 0 {
		cfg.Activity.RetentionDays = DefaultRetentionDays
	}
	if cfg.Activity.MaxItems == 0 {
		cfg.Activity.MaxItems = DefaultMaxActivityItems
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendJSON
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
