package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/dejo1307/verusreport/internal/extractors/verusextractor"
	"github.com/dejo1307/verusreport/internal/transcript"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "verusreport.yaml"

// KnownRenderers lists every renderer name the configuration may enable.
var KnownRenderers = []string{
	"json",
	"msgpack",
	"llm_context",
	"functions_text",
	"functions_detailed",
	"functions_json",
	"functions_jsonl",
}

// Config represents the verusreport.yaml configuration.
type Config struct {
	Root       string           `yaml:"root" toml:"root"`
	Extractor  ExtractorConfig  `yaml:"extractor" toml:"extractor"`
	Transcript TranscriptConfig `yaml:"transcript" toml:"transcript"`
	Report     ReportConfig     `yaml:"report" toml:"report"`
	Renderers  []string         `yaml:"renderers" toml:"renderers"`
	Output     OutputConfig     `yaml:"output" toml:"output"`
}

// ExtractorConfig controls source enumeration and macro recognition.
type ExtractorConfig struct {
	Extensions        []string `yaml:"extensions" toml:"extensions"`
	Ignore            []string `yaml:"ignore" toml:"ignore"`
	Workers           int      `yaml:"workers" toml:"workers"`
	WrapperMacros     []string `yaml:"wrapper_macros" toml:"wrapper_macros"`
	ConditionalMacros []string `yaml:"conditional_macros" toml:"conditional_macros"`
}

// TranscriptConfig holds the verifier output markers.
type TranscriptConfig struct {
	VerifiedMarker         string   `yaml:"verified_marker" toml:"verified_marker"`
	FailedMarker           string   `yaml:"failed_marker" toml:"failed_marker"`
	VerificationErrorTypes []string `yaml:"verification_error_types" toml:"verification_error_types"`
}

// ReportConfig controls correlation.
type ReportConfig struct {
	InferVerified bool   `yaml:"infer_verified" toml:"infer_verified"`
	Module        string `yaml:"module" toml:"module"`
	Function      string `yaml:"function" toml:"function"`
}

// OutputConfig controls where and how output artifacts are generated.
type OutputConfig struct {
	Dir              string `yaml:"dir" toml:"dir"`
	MaxContextTokens int    `yaml:"max_context_tokens" toml:"max_context_tokens"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	ext := verusextractor.DefaultConfig()
	tr := transcript.DefaultConfig()
	return &Config{
		Root: ".",
		Extractor: ExtractorConfig{
			Extensions:        ext.Extensions,
			Ignore:            ext.Ignore,
			WrapperMacros:     ext.WrapperMacros,
			ConditionalMacros: ext.ConditionalMacros,
		},
		Transcript: TranscriptConfig{
			VerifiedMarker:         tr.VerifiedMarker,
			FailedMarker:           tr.FailedMarker,
			VerificationErrorTypes: tr.VerificationErrorTypes,
		},
		Renderers: []string{"json", "llm_context"},
		Output: OutputConfig{
			Dir:              ".verusreport",
			MaxContextTokens: 4000,
		},
	}
}

// Load reads a configuration file from the given path. Files ending in
// .toml are decoded as TOML, everything else as YAML.
// Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Ensure required defaults
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = ".verusreport"
	}
	if cfg.Output.MaxContextTokens == 0 {
		cfg.Output.MaxContextTokens = 4000
	}
	if len(cfg.Extractor.Extensions) == 0 {
		cfg.Extractor.Extensions = verusextractor.DefaultConfig().Extensions
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Extractor.Workers < 0 {
		return fmt.Errorf("extractor.workers must not be negative, got %d", c.Extractor.Workers)
	}
	for _, ext := range c.Extractor.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extractor.extensions: %q does not start with a dot", ext)
		}
	}
	for _, pattern := range c.Extractor.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("extractor.ignore: %q: %w", pattern, err)
		}
	}
	if err := c.ParserConfig().Validate(); err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	for _, name := range c.Renderers {
		if !contains(KnownRenderers, name) {
			return fmt.Errorf("unknown renderer %q", name)
		}
	}
	if c.Output.MaxContextTokens < 0 {
		return fmt.Errorf("output.max_context_tokens must not be negative, got %d", c.Output.MaxContextTokens)
	}
	return nil
}

// ExtractorOptions converts the extractor section for verusextractor.New.
func (c *Config) ExtractorOptions() verusextractor.Config {
	return verusextractor.Config{
		Extensions:        c.Extractor.Extensions,
		Ignore:            c.Extractor.Ignore,
		Workers:           c.Extractor.Workers,
		WrapperMacros:     c.Extractor.WrapperMacros,
		ConditionalMacros: c.Extractor.ConditionalMacros,
	}
}

// ParserConfig converts the transcript section for transcript.New.
func (c *Config) ParserConfig() transcript.Config {
	return transcript.Config{
		VerifiedMarker:         c.Transcript.VerifiedMarker,
		FailedMarker:           c.Transcript.FailedMarker,
		VerificationErrorTypes: c.Transcript.VerificationErrorTypes,
	}
}

// IsRendererEnabled returns true if the named renderer is enabled.
func (c *Config) IsRendererEnabled(name string) bool {
	return contains(c.Renderers, name)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
