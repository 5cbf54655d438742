// Package cli holds what the anclc commands share: version information,
// the YAML configuration and the tlog-backed logger.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/ancl/internal/irtext"
)

// Version information for the tools.
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// CommitSHA is set at link time with -X.
var CommitSHA = "unknown"

// VersionInfo contains version and build information
type VersionInfo struct {
	Version    string `json:"version"`
	BuildDate  string `json:"build_date"`
	CommitSHA  string `json:"commit_sha"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	Arch       string `json:"arch"`
	IRVersion  string `json:"ir_version"`
	IRAccepted string `json:"ir_accepted"`
}

// ToolVersion is Version parsed.
func ToolVersion() *semver.Version {
	return semver.MustParse(Version)
}

// GetVersionInfo returns structured version information
func GetVersionInfo() *VersionInfo {
	return &VersionInfo{
		Version:    ToolVersion().String(),
		BuildDate:  BuildDate,
		CommitSHA:  CommitSHA,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS,
		Arch:       runtime.GOARCH,
		IRVersion:  irtext.Version,
		IRAccepted: irtext.SupportedVersions,
	}
}

// Ident is the tool identification written into emitted assembly.
func Ident(tool, session string) string {
	if session == "" {
		return fmt.Sprintf("%s %s", tool, ToolVersion())
	}
	return fmt.Sprintf("%s %s (session %s)", tool, ToolVersion(), session)
}

// PrintVersion writes version information as text or JSON.
func PrintVersion(w io.Writer, toolName string, jsonOutput bool) error {
	info := GetVersionInfo()

	if jsonOutput {
		data, err := json.MarshalIndent(map[string]interface{}{
			"tool":         toolName,
			"version_info": info,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintf(w, "%s v%s\n", toolName, info.Version)
	fmt.Fprintf(w, "Build Date: %s\n", info.BuildDate)
	if info.CommitSHA != "unknown" && info.CommitSHA != "" {
		fmt.Fprintf(w, "Commit: %s\n", info.CommitSHA)
	}
	fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Platform: %s/%s\n", info.Platform, info.Arch)
	_, err := fmt.Fprintf(w, "IR format: %s (accepts %s)\n", info.IRVersion, info.IRAccepted)
	return err
}
