package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "Show the versions of the Go toolchain and linked modules",
		Long: `Print the Go version, the fhir-consensus version and the version of every
module linked into the binary, as YAML under go_tools.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, ok := debug.ReadBuildInfo()
			if !ok {
				return fmt.Errorf("build information not available")
			}
			return writeVersions(cmd.OutOrStdout(), info)
		},
	}
}

// writeVersions writes info as a go_tools mapping of short module names to
// versions. Replaced modules report the replacement version.
func writeVersions(w io.Writer, info *debug.BuildInfo) error {
	tools := map[string]string{
		"go":             strings.TrimPrefix(info.GoVersion, "go"),
		"fhir-consensus": version,
	}
	for _, dep := range info.Deps {
		v := dep.Version
		if dep.Replace != nil {
			v = dep.Replace.Version
		}
		if v == "" {
			v = "unknown"
		}
		tools[shortModuleName(dep.Path)] = v
	}

	out, err := yaml.Marshal(map[string]map[string]string{"go_tools": tools})
	if err != nil {
		return fmt.Errorf("marshaling versions: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// shortModuleName drops the host from a module path and any major version
// suffix, so "github.com/spf13/cobra" becomes "spf13/cobra" and
// "gopkg.in/yaml.v3" becomes "yaml.v3".
func shortModuleName(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 1 && strings.Contains(parts[0], ".") {
		parts = parts[1:]
	}
	if n := len(parts); n > 1 && isMajorVersion(parts[n-1]) {
		parts = parts[:n-1]
	}
	return strings.Join(parts, "/")
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
