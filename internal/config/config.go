package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigFileName is looked up in the home directory and the project root.
const ConfigFileName = ".findall.kdl"

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

const (
	DefaultMaxFileSize           = 10 * 1024 * 1024
	DefaultMaxFileCount          = 100000
	DefaultWatchDebounceMs       = 300
	DefaultBatchSize             = 100
	DefaultCooldownMs            = 3000
	DefaultIgnoreCheckDebounceMs = 25
	DefaultReextractPerSecond    = 20.0
	DefaultMaxConcurrentFileOps  = 50
	DefaultMaxWorkers            = 8
	DefaultMaxResults            = 50
	DefaultPersonalization       = 0.3
	DefaultMaxTextFileSize       = 1024 * 1024
	DefaultMaxTextResults        = 200
	DefaultRouteCacheSize        = 500
	DefaultSaveIntervalSec       = 30
	DefaultRetentionDays         = 30
	DefaultMaxActivityItems      = 5000
)

type Config struct {
	Version     int
	Project     Project
	Index       Index
	Performance Performance
	Search      Search
	Activity    Activity
	Storage     Storage
	Include     []string
	Exclude     []string
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	MaxFileSize           int64
	MaxFileCount          int
	FollowSymlinks        bool
	RespectGitignore      bool // Honor .gitignore when walking without git
	UseVCS                bool // Discover files and ignore status through git
	SkipGenerated         bool // Skip files carrying a generated-code header
	WatchMode             bool // Enable file system watching for incremental updates
	WatchDebounceMs       int  // Debounce time for file change events
	BatchSize             int  // Files handed to a worker at a time
	CooldownMs            int  // Quiet window after a full index or HEAD change
	IgnoreCheckDebounceMs int  // Window for batching VCS ignore checks
	ReextractPerSecond    float64
}

type Performance struct {
	ParallelFileWorkers  int // 0 = auto-detect (NumCPU, capped)
	MaxConcurrentFileOps int // Concurrent stat/read operations while listing files
	IndexingTimeoutSec   int // 0 = no timeout
	StartupDelayMs       int // Delay before the initial index starts
}

type Search struct {
	MaxResults            int
	EnableAcronym         bool
	TypoTolerance         bool
	CharMaskPrefilter     bool
	PersonalizationWeight float64
	MaxTextFileSize       int64
	MaxTextResults        int
	RouteCacheSize        int
}

type Activity struct {
	Enabled         bool
	SaveIntervalSec int
	RetentionDays   int
	MaxItems        int
}

type Storage struct {
	Backend string // json, sqlite, badger or memory
	Path    string // Directory for persisted state; defaults to <root>/.findall
}

// StorageDir resolves the directory persisted state lives in.
func (c *Config) StorageDir() string {
	if c.Storage.Path == "" {
		return filepath.Join(c.Project.Root, ".findall")
	}
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(c.Project.Root, c.Storage.Path)
}

// Default returns the configuration used when no config file exists.
func Default(root string) *Config {
	if root == "" {
		if cwd, err := os.Getwd(); err == nil {
			root = cwd
		} else {
			root = "."
		}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Config{
		Version: 1,
		Project: Project{
			Root: root,
			Name: filepath.Base(root),
		},
		Index: Index{
			MaxFileSize:           DefaultMaxFileSize,
			MaxFileCount:          DefaultMaxFileCount,
			FollowSymlinks:        false,
			RespectGitignore:      true,
			UseVCS:                true,
			SkipGenerated:         true,
			WatchMode:             true,
			WatchDebounceMs:       DefaultWatchDebounceMs,
			BatchSize:             DefaultBatchSize,
			CooldownMs:            DefaultCooldownMs,
			IgnoreCheckDebounceMs: DefaultIgnoreCheckDebounceMs,
			ReextractPerSecond:    DefaultReextractPerSecond,
		},
		Performance: Performance{
			ParallelFileWorkers:  0,
			MaxConcurrentFileOps: DefaultMaxConcurrentFileOps,
			IndexingTimeoutSec:   0,
			StartupDelayMs:       0,
		},
		Search: Search{
			MaxResults:            DefaultMaxResults,
			EnableAcronym:         true,
			TypoTolerance:         true,
			CharMaskPrefilter:     false,
			PersonalizationWeight: DefaultPersonalization,
			MaxTextFileSize:       DefaultMaxTextFileSize,
			MaxTextResults:        DefaultMaxTextResults,
			RouteCacheSize:        DefaultRouteCacheSize,
		},
		Activity: Activity{
			Enabled:         true,
			SaveIntervalSec: DefaultSaveIntervalSec,
			RetentionDays:   DefaultRetentionDays,
			MaxItems:        DefaultMaxActivityItems,
		},
		Storage: Storage{
			Backend: BackendJSON,
		},
		Include: []string{},
		Exclude: defaultExclusions(),
	}
}

// WorkerCount resolves the extraction worker pool size.
func (c *Config) WorkerCount() int {
	if c.Performance.ParallelFileWorkers > 0 {
		return c.Performance.ParallelFileWorkers
	}
	return max(1, min(runtime.NumCPU(), DefaultMaxWorkers))
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads ~/.findall.kdl as a base and merges the project's
// .findall.kdl over it. path, when set, names an explicit config file
// that replaces the project lookup.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}
	if abs, err := filepath.Abs(searchDir); err == nil {
		searchDir = abs
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != searchDir {
		if globalCfg, err := LoadKDL(homeDir, searchDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	var err error
	if path != "" {
		projectConfig, err = LoadKDLFile(path, searchDir)
	} else {
		projectConfig, err = LoadKDL(searchDir, searchDir)
	}
	if err != nil {
		return nil, err
	}

	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = searchDir
		baseConfig.Project.Name = filepath.Base(searchDir)
		cfg = baseConfig
	default:
		cfg = Default(searchDir)
	}

	cfg.EnrichExclusionsWithBuildArtifacts()
	return cfg, nil
}

// mergeConfigs merges a base config with a project config
// Project config takes precedence, but base exclusions are preserved
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		merged.Exclude = DeduplicatePatterns(append(append([]string{}, base.Exclude...), project.Exclude...))
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	return &merged
}

// EnrichExclusionsWithBuildArtifacts detects build output directories from language configs
// and adds them to the exclusion list
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}

	detector := NewBuildArtifactDetector(c.Project.Root)
	if detected := detector.DetectOutputDirectories(); len(detected) > 0 {
		c.Exclude = DeduplicatePatterns(append(c.Exclude, detected...))
	}
}

func defaultExclusions() []string {
	return []string{
		// Hidden directories, .git included
		"**/.*/**",

		// Package managers & dependencies
		"**/node_modules/**",
		"**/vendor/**",
		"**/bower_components/**",
		"**/__pycache__/**",
		"**/venv/**",
		"**/site-packages/**",

		// Build artifacts & output
		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/target/**",
		"**/bin/**",
		"**/obj/**",
		"**/coverage/**",
		"**/*.min.js",
		"**/*.min.css",
		"**/*.bundle.js",
		"**/*.chunk.js",
		"**/*.map",

		// Compiled and binary artifacts
		"**/*.pyc",
		"**/*.class",
		"**/*.o",
		"**/*.so",
		"**/*.dll",
		"**/*.exe",
		"**/*.dylib",
		"**/*.a",
		"**/*.wasm",

		// Editor temp files
		"**/*.swp",
		"**/*.swo",
		"**/*~",

		// OS files
		"**/.DS_Store",
		"**/Thumbs.db",

		// Logs
		"**/*.log",
	}
}
