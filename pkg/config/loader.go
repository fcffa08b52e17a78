package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration file, filling unset fields from the
// built-in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse unmarshals YAML config bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	applyProfileDefaults(&cfg.Deconvolution, DefaultDeconvolutionProfile())
	applyProfileDefaults(&cfg.ModelBased, DefaultModelBasedProfile())
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyProfileDefaults(p *DEProfile, def DEProfile) {
	if p.Strategy == "" {
		p.Strategy = def.Strategy
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = def.MaxIterations
	}
	if p.PopSize <= 0 {
		p.PopSize = def.PopSize
	}
	if p.Tol <= 0 {
		p.Tol = def.Tol
	}
	if p.MutationMin <= 0 {
		p.MutationMin = def.MutationMin
	}
	if p.MutationMax <= 0 {
		p.MutationMax = def.MutationMax
	}
	if p.Recombination <= 0 {
		p.Recombination = def.Recombination
	}
	if p.Init == "" {
		p.Init = def.Init
	}
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("http_addr cannot be empty")
	}
	for name, p := range map[string]DEProfile{
		"deconvolution": cfg.Deconvolution,
		"model_based":   cfg.ModelBased,
	} {
		if p.Strategy != "best1bin" {
			return fmt.Errorf("%s: unsupported strategy: %s", name, p.Strategy)
		}
		if p.MutationMin > p.MutationMax {
			return fmt.Errorf("%s: mutation_min %.3f exceeds mutation_max %.3f", name, p.MutationMin, p.MutationMax)
		}
		if p.MutationMax >= 2 {
			return fmt.Errorf("%s: mutation_max must be below 2, got %.3f", name, p.MutationMax)
		}
		if p.Recombination <= 0 || p.Recombination > 1 {
			return fmt.Errorf("%s: recombination must be in (0, 1], got %.3f", name, p.Recombination)
		}
		if p.Init != "latinhypercube" && p.Init != "random" {
			return fmt.Errorf("%s: unsupported init scheme: %s", name, p.Init)
		}
	}
	return nil
}
