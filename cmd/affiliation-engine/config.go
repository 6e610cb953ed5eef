// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// setDefaults registers every config key so that environment variables and
// Unmarshal see them even when no config file is present.
func setDefaults(v *viper.Viper, def types.Config) {
	v.SetDefault("registry.base_url", def.Registry.BaseURL)
	v.SetDefault("registry.timeout", def.Registry.Timeout)
	v.SetDefault("registry.user_agent", def.Registry.UserAgent)
	v.SetDefault("registry.mode", string(def.Registry.Mode))
	v.SetDefault("registry.page_size", def.Registry.PageSize)
	v.SetDefault("registry.per_domain", def.Registry.PerDomain)
	v.SetDefault("registry.record_delay", def.Registry.RecordDelay)
	v.SetDefault("registry.overall_timeout", def.Registry.OverallTimeout)
	v.SetDefault("registry.max_retries", def.Registry.MaxRetries)
	v.SetDefault("merge.dedup_include_email", def.Merge.DedupIncludeEmail)
	v.SetDefault("merge.default_source", def.Merge.DefaultSource)
	v.SetDefault("serve.addr", def.Serve.Addr)
}

// flagKeys maps command flags to the config keys they override.
var flagKeys = map[string]string{
	"base-url":        "registry.base_url",
	"mode":            "registry.mode",
	"per-domain":      "registry.per_domain",
	"record-delay":    "registry.record_delay",
	"overall-timeout": "registry.overall_timeout",
	"dedup-email":     "merge.dedup_include_email",
	"addr":            "serve.addr",
}

// loadConfig resolves the effective config for cmd. Flags the user set
// explicitly win over config file and environment values, which win over
// the built-in defaults.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	return decodeConfig(viper.GetViper(), cmd.Flags())
}

func decodeConfig(v *viper.Viper, flags *pflag.FlagSet) (types.Config, error) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	switch cfg.Registry.Mode {
	case types.ModeExpanded, types.ModeSearch:
	default:
		return types.Config{}, fmt.Errorf("invalid registry mode %q: use %s or %s",
			cfg.Registry.Mode, types.ModeExpanded, types.ModeSearch)
	}
	return cfg, nil
}
