package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configKeys lists the settable keys and how their values are parsed.
var configKeys = map[string]func(string) (any, error){
	keyRejectOverlaps: parseBool,
	keyLineWidth:      parseNonNegativeInt,
	keyStorePath:      func(s string) (any, error) { return s, nil },
	keyBatchWorkers:   parsePositiveInt,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fhir-consensus configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.fhir-consensus.yaml.",
		Example: `  fhir-consensus config                                   # show all config
  fhir-consensus config set consensus.reject_overlaps true  # fail on overlapping calls
  fhir-consensus config set store.path ~/runs.duckdb        # record every run
  fhir-consensus config get batch.workers                   # get a value`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Known keys: " + knownKeys(),
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd.OutOrStdout(), args[0])
		},
	}
}

// runConfigShow prints the effective configuration: defaults overlaid with
// the config file and FHIR_CONSENSUS_* environment variables.
func runConfigShow(w io.Writer) error {
	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	cfgFile := viper.ConfigFileUsed()
	if _, err := os.Stat(cfgFile); cfgFile == "" || err != nil {
		cfgFile = "none"
	}
	fmt.Fprintf(w, "# Config file: %s\n", cfgFile)
	fmt.Fprint(w, string(out))
	return nil
}

// runConfigSet stores key in the config file. Only keys already in the file
// and the new one are written; defaults and environment values are not.
func runConfigSet(w io.Writer, key, value string) error {
	parse, ok := configKeys[key]
	if !ok {
		return &usageError{fmt.Errorf("unknown config key %q (known: %s)", key, knownKeys())}
	}
	v, err := parse(value)
	if err != nil {
		return &usageError{fmt.Errorf("invalid value for %s: %w", key, err)}
	}
	viper.Set(key, v)

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".fhir-consensus.yaml")
	}

	file := viper.New()
	file.SetConfigFile(cfgFile)
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading config: %w", err)
	}
	file.Set(key, v)
	if err := file.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %v in %s\n", key, v, cfgFile)
	return nil
}

func runConfigGet(w io.Writer, key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(w, val)
	return nil
}

func knownKeys() string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func parseBool(s string) (any, error) {
	switch s {
	case "true", "yes", "on":
		return true, nil
	case "false", "no", "off":
		return false, nil
	}
	return nil, fmt.Errorf("expected true or false, got %q", s)
}

func parseNonNegativeInt(s string) (any, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("expected a non-negative integer, got %q", s)
	}
	return n, nil
}

func parsePositiveInt(s string) (any, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("expected a positive integer, got %q", s)
	}
	return n, nil
}
