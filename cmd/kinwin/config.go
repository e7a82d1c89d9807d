package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindBool
)

// configKeys lists the keys "config set" accepts and how their values parse.
var configKeys = map[string]keyKind{
	"occ_width":     kindInt,
	"extend":        kindInt,
	"log_level":     kindString,
	"metrics_file":  kindString,
	"s3.region":     kindString,
	"s3.endpoint":   kindString,
	"s3.path_style": kindBool,
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage kinwin configuration",
		Long: `Show, get, or set configuration values stored in ~/.kinwin.yaml (or --config).
Every key can also be set through the environment, e.g. KINWIN_EXTEND=10 or
KINWIN_S3_ENDPOINT=http://localhost:9000.`,
		Example: `  kinwin config                                # show the config file values
  kinwin config set extend 10                  # default window extension
  kinwin config set s3.endpoint http://localhost:9000
  kinwin config get occ_width`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showConfig()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a configuration value",
		Args:      exactArgs(2),
		ValidArgs: knownKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setConfig(args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.getConfig(args[0])
		},
	})
	return cmd
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func knownKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// showConfig prints the values that come from the config file or environment.
// The log_level flag default is left out so an empty config reads as empty.
func (a *app) showConfig() error {
	settings := viper.AllSettings()
	if !viper.InConfig("log_level") {
		delete(settings, "log_level")
	}
	if len(settings) == 0 {
		fmt.Fprintln(a.stdout, "# No configuration set. Config file: ~/.kinwin.yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprint(a.stdout, string(out))
	return nil
}

// parseConfigValue converts raw to the type registered for key.
func parseConfigValue(key, raw string) (any, error) {
	kind, ok := configKeys[key]
	if !ok {
		return nil, usagef("unknown config key %q (known: %v)", key, knownKeys())
	}
	switch kind {
	case kindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return nil, usagef("%s must be a non-negative integer, got %q", key, raw)
		}
		return v, nil
	case kindBool:
		switch raw {
		case "true", "yes", "on":
			return true, nil
		case "false", "no", "off":
			return false, nil
		}
		return nil, usagef("%s must be true or false, got %q", key, raw)
	}
	return raw, nil
}

func (a *app) setConfig(key, raw string) error {
	value, err := parseConfigValue(key, raw)
	if err != nil {
		return err
	}
	viper.Set(key, value)

	path := viper.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("find home directory: %w", err)
		}
		path = filepath.Join(home, ".kinwin.yaml")
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(a.stdout, "Set %s = %v in %s\n", key, value, path)
	return nil
}

func (a *app) getConfig(key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(a.stdout, val)
	return nil
}
