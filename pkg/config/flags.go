package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --upstream
// on both "splice serve" and "splice token").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag registry keys to Flag structs.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen      = "listen"
	FlagUpstream    = "upstream"
	FlagSinkDriver  = "sink"
	FlagJSONLPath   = "jsonl"
	FlagSQLitePath  = "sqlite"
	FlagPostgresDSN = "postgres"
	FlagEquality    = "equality"
	FlagTopic       = "topic"
)

// Flags is the shared registry used by the splice commands.
var Flags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "proxy.listen",
		Description: "address the capture proxy listens on",
	},
	FlagUpstream: {
		Name:        "upstream",
		Shorthand:   "u",
		ViperKey:    "proxy.upstream",
		Description: "upstream API origin traffic is forwarded to",
	},
	FlagSinkDriver: {
		Name:        "sink",
		ViperKey:    "sink.driver",
		Description: "record sink backend (jsonl, sqlite, postgres)",
	},
	FlagJSONLPath: {
		Name:        "jsonl",
		ViperKey:    "sink.jsonl_path",
		Description: "path to the JSONL capture log",
	},
	FlagSQLitePath: {
		Name:        "sqlite",
		ViperKey:    "sink.sqlite_path",
		Description: "path to the sqlite capture database",
	},
	FlagPostgresDSN: {
		Name:        "postgres",
		ViperKey:    "sink.postgres_dsn",
		Description: "postgres connection string for the capture database",
	},
	FlagEquality: {
		Name:        "equality",
		ViperKey:    "merge.equality",
		Description: "message comparison mode for merging (strict, structural)",
	},
	FlagTopic: {
		Name:        "topic",
		ViperKey:    "eventstream.topic",
		Description: "kafka topic pair events are published to",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}
