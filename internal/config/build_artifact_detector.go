// Build artifact detection from language-specific manifests.
// package.json and tsconfig.json are read with encoding/json, Cargo.toml and
// pyproject.toml with go-toml.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// BuildArtifactDetector finds language-specific build output directories
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a new build artifact detector
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

type packageManifest struct {
	Scripts map[string]string `json:"scripts"`
	Build   struct {
		OutDir string `json:"outDir"`
	} `json:"build"`
}

type tsconfigManifest struct {
	CompilerOptions struct {
		OutDir string `json:"outDir"`
	} `json:"compilerOptions"`
}

type cargoManifest struct {
	Build struct {
		TargetDir string `toml:"target-dir"`
	} `toml:"build"`
	Profile map[string]struct {
		TargetDir string `toml:"target-dir"`
	} `toml:"profile"`
}

type pyprojectManifest struct {
	Tool struct {
		Poetry struct {
			Build struct {
				TargetDir string `toml:"target-dir"`
			} `toml:"build"`
		} `toml:"poetry"`
		Setuptools struct {
			BuildDir string `toml:"build-dir"`
		} `toml:"setuptools"`
	} `toml:"tool"`
}

// DetectOutputDirectories returns exclusion globs such as "**/dist/**"
// for output directories declared by manifests in the project root.
func (bad *BuildArtifactDetector) DetectOutputDirectories() []string {
	var dirs []string

	var pkg packageManifest
	if bad.readJSON("package.json", &pkg) {
		dirs = append(dirs, pkg.Build.OutDir)
		for _, script := range pkg.Scripts {
			dirs = append(dirs, outDirFlag(script))
		}
	}

	var ts tsconfigManifest
	if bad.readJSON("tsconfig.json", &ts) {
		dirs = append(dirs, ts.CompilerOptions.OutDir)
	}

	var cargo cargoManifest
	if bad.readTOML("Cargo.toml", &cargo) {
		dirs = append(dirs, cargo.Build.TargetDir)
		for _, p := range cargo.Profile {
			dirs = append(dirs, p.TargetDir)
		}
	}

	var py pyprojectManifest
	if bad.readTOML("pyproject.toml", &py) {
		dirs = append(dirs, py.Tool.Poetry.Build.TargetDir, py.Tool.Setuptools.BuildDir)
	}

	var patterns []string
	for _, d := range dirs {
		d = strings.Trim(filepath.ToSlash(strings.TrimSpace(d)), "./\"'")
		if d == "" {
			continue
		}
		patterns = append(patterns, "**/"+d+"/**")
	}
	return DeduplicatePatterns(patterns)
}

func (bad *BuildArtifactDetector) readJSON(name string, v any) bool {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, name))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (bad *BuildArtifactDetector) readTOML(name string, v any) bool {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, name))
	if err != nil {
		return false
	}
	return toml.Unmarshal(data, v) == nil
}

// outDirFlag extracts the value of --outDir/-outDir from a build script.
func outDirFlag(script string) string {
	parts := strings.Fields(script)
	for i, part := range parts {
		if (part == "--outDir" || part == "-outDir") && i+1 < len(parts) {
			return parts[i+1]
		}
		if v, ok := strings.CutPrefix(part, "--outDir="); ok {
			return v
		}
	}
	return ""
}

// DeduplicatePatterns removes duplicate exclusion patterns, keeping order
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	result := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}

	return result
}
