// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "affiliation-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchMode selects which registry search endpoint is used.
type SearchMode string

const (
	// ModeExpanded uses the JSON expanded-search endpoint with start/rows paging.
	ModeExpanded SearchMode = "expanded"
	// ModeSearch uses the namespace-qualified XML search endpoint.
	ModeSearch SearchMode = "search"
)

// RegistryConfig holds settings for the registry search client.
type RegistryConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the registry's public API root (default https://pub.orcid.org/v3.0).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Mode selects the search endpoint (default expanded).
	Mode SearchMode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// PageSize caps rows per search request (default and registry maximum 200).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// PerDomain issues one query per domain instead of one disjunctive query.
	PerDomain bool `json:"per_domain" yaml:"per_domain" mapstructure:"per_domain"`

	// RecordDelay is the pause after each record fetch (default 100ms).
	RecordDelay time.Duration `json:"record_delay" yaml:"record_delay" mapstructure:"record_delay"`

	// OverallTimeout bounds the whole search call; zero means unbounded.
	OverallTimeout time.Duration `json:"overall_timeout" yaml:"overall_timeout" mapstructure:"overall_timeout"`

	// MaxRetries is the number of retries on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// MergeConfig holds the merge engine's dedup policy.
type MergeConfig struct {
	// DedupIncludeEmail extends the dedup key with the e-mail addresses column.
	DedupIncludeEmail bool `json:"dedup_include_email" yaml:"dedup_include_email" mapstructure:"dedup_include_email"`

	// DefaultSource is backfilled into rows without a provenance tag
	// (default "File Upload").
	DefaultSource string `json:"default_source" yaml:"default_source" mapstructure:"default_source"`
}

// ServeConfig holds settings for the HTTP API.
type ServeConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// Config groups all stage configurations.
type Config struct {
	Registry RegistryConfig `json:"registry" yaml:"registry" mapstructure:"registry"`
	Merge    MergeConfig    `json:"merge" yaml:"merge" mapstructure:"merge"`
	Serve    ServeConfig    `json:"serve" yaml:"serve" mapstructure:"serve"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Registry: RegistryConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   30 * time.Second,
				UserAgent: "affiliation-engine/0.1",
			},
			BaseURL:     "https://pub.orcid.org/v3.0",
			Mode:        ModeExpanded,
			PageSize:    200,
			RecordDelay: 100 * time.Millisecond,
			MaxRetries:  5,
		},
		Merge: MergeConfig{
			DefaultSource: SourceFileUpload,
		},
		Serve: ServeConfig{
			Addr: ":8080",
		},
	}
}
