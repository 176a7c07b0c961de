package perf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/diagramops/cache"
	"github.com/jonwraymond/diagramops/codec"
	"github.com/jonwraymond/diagramops/health"
	"github.com/jonwraymond/diagramops/observe"
	"github.com/jonwraymond/diagramops/resilience"
)

// ErrInvalidConfig wraps every configuration error from this package.
var ErrInvalidConfig = errors.New("perf: invalid config")

// Config is the full subsystem configuration.
type Config struct {
	Observe     observe.Config            `yaml:"observe"`
	Codec       codec.Config              `yaml:"codec"`
	Caches      CachesConfig              `yaml:"caches"`
	Source      resilience.Config         `yaml:"source"`
	Health      health.AggregatorConfig   `yaml:"health"`
	CacheHealth health.CacheCheckerConfig `yaml:"cache_health"`
}

// CachesConfig tunes the four cache instances.
type CachesConfig struct {
	Diagrams cache.Config `yaml:"diagrams"`
	Versions cache.Config `yaml:"versions"`
	Lists    cache.Config `yaml:"lists"`
	Exports  cache.Config `yaml:"exports"`
}

const mib = 1024 * 1024

// DefaultConfig returns the production tuning.
//
//	diagrams  500 entries, 100 MiB, 10m
//	versions 1000 entries,  50 MiB, 30m
//	lists     200 entries,  10 MiB,  1m
//	exports   200 entries,  50 MiB, 15m, 10% batch eviction
//
// Source loads get a 5s timeout, one retry and a breaker that opens after
// five consecutive failures.
func DefaultConfig() Config {
	return Config{
		Observe: observe.Config{
			ServiceName: "diagram-perf",
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Codec: codec.DefaultConfig(),
		Caches: CachesConfig{
			Diagrams: cache.Config{Name: "diagrams", MaxEntries: 500, MaxSizeBytes: 100 * mib, TTL: 10 * time.Minute},
			Versions: cache.Config{Name: "versions", MaxEntries: 1000, MaxSizeBytes: 50 * mib, TTL: 30 * time.Minute},
			Lists:    cache.Config{Name: "lists", MaxEntries: 200, MaxSizeBytes: 10 * mib, TTL: time.Minute},
			Exports: cache.Config{
				Name:                 "exports",
				MaxEntries:           200,
				MaxSizeBytes:         50 * mib,
				TTL:                  15 * time.Minute,
				EvictionBatchPercent: 0.1,
			},
		},
		Source: resilience.Config{
			Timeout: 5 * time.Second,
			Retry: resilience.RetryConfig{
				MaxAttempts:  2,
				InitialDelay: 50 * time.Millisecond,
				MaxDelay:     time.Second,
				Jitter:       true,
			},
			Breaker: resilience.BreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second},
		},
		Health: health.AggregatorConfig{Timeout: 5 * time.Second},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Codec.Validate(); err != nil {
		return fmt.Errorf("%w: codec: %w", ErrInvalidConfig, err)
	}
	for _, nc := range c.Caches.named() {
		if err := nc.cfg.Validate(); err != nil {
			return fmt.Errorf("%w: caches.%s: %w", ErrInvalidConfig, nc.name, err)
		}
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("%w: source: %w", ErrInvalidConfig, err)
	}
	return nil
}

type namedConfig struct {
	name string
	cfg  cache.Config
}

func (c CachesConfig) named() []namedConfig {
	return []namedConfig{
		{"diagrams", c.Diagrams},
		{"versions", c.Versions},
		{"lists", c.Lists},
		{"exports", c.Exports},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. See ParseConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("perf: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig expands ${VAR} references strictly, decodes the YAML on top
// of DefaultConfig and validates the result. Unknown keys are rejected.
// Durations use Go syntax ("90s", "10m").
func ParseConfig(data []byte) (Config, error) {
	expanded, err := expandEnvStrict(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvStrict expands $VAR and ${VAR}. A ${VAR} that is not set is an
// error; $$ emits a literal $.
func expandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00PERF_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(match[1]); !ok {
			missing[match[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
