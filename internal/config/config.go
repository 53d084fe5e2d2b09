// metafiliX - watermarking and sanitizing of PDF and image files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package config loads the service configuration from defaults, an
// optional JSON file, .env files and environment variables, in this order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/garnajee/metafiliX/batch"
	"github.com/garnajee/metafiliX/pdfpage"
	"github.com/garnajee/metafiliX/pipeline"
	"github.com/garnajee/metafiliX/reconstruct"
	"github.com/garnajee/metafiliX/watermark"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig       `json:"server"`
	Logging  LoggingConfig      `json:"logging"`
	Pipeline PipelineConfig     `json:"pipeline"`
	Batch    BatchConfig        `json:"batch"`
	Settings watermark.Settings `json:"settings"`
}

// ServerConfig configures the HTTP intake server.
type ServerConfig struct {
	Addr            string   `json:"addr"`
	MaxUploadMB     int      `json:"max_upload_mb"`
	ResultTTL       Duration `json:"result_ttl"`
	EvictSchedule   string   `json:"evict_schedule"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// PipelineConfig holds the fixed processing parameters.
type PipelineConfig struct {
	MaxDimension int     `json:"max_dimension"`
	Scale        float64 `json:"scale"`
	Quality      int     `json:"quality"`
	OutputPrefix string  `json:"output_prefix"`
}

// BatchConfig configures the document orchestrator.
type BatchConfig struct {
	Debounce Duration `json:"debounce"`
}

// Duration is a time.Duration which is written as a string like "15m" in
// JSON files.  Plain numbers are read as nanoseconds.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements the [json.Unmarshaler] interface.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		d.Duration = time.Duration(v)
	case string:
		x, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		d.Duration = x
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// MarshalJSON implements the [json.Marshaler] interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxUploadMB:     50,
			ResultTTL:       Duration{time.Hour},
			EvictSchedule:   "@every 1m",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Pipeline: PipelineConfig{
			MaxDimension: pipeline.DefaultMaxDimension,
			Scale:        pdfpage.DefaultScale,
			Quality:      reconstruct.DefaultQuality,
			OutputPrefix: pipeline.DefaultPrefix,
		},
		Batch: BatchConfig{
			Debounce: Duration{batch.DefaultDebounce},
		},
		Settings: watermark.DefaultSettings(),
	}
}

// Environment variables which override configuration values.
const (
	EnvConfig       = "METAFILIX_CONFIG"
	EnvAddr         = "METAFILIX_ADDR"
	EnvLogLevel     = "METAFILIX_LOG_LEVEL"
	EnvLogDev       = "METAFILIX_LOG_DEV"
	EnvMaxUploadMB  = "METAFILIX_MAX_UPLOAD_MB"
	EnvResultTTL    = "METAFILIX_RESULT_TTL"
	EnvDebounce     = "METAFILIX_DEBOUNCE"
	EnvOutputPrefix = "METAFILIX_OUTPUT_PREFIX"
)

// Load builds the configuration.  Variables from the given .env files are
// added to the environment first; without arguments, an optional ".env"
// file in the working directory is used.  The JSON file is taken from path
// or, if path is empty, from $METAFILIX_CONFIG.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overrideWithEnv() error {
	if addr := os.Getenv(EnvAddr); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
	if dev := os.Getenv(EnvLogDev); dev != "" {
		v, err := strconv.ParseBool(dev)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogDev, err)
		}
		c.Logging.Development = v
	}
	if mb := os.Getenv(EnvMaxUploadMB); mb != "" {
		v, err := strconv.Atoi(mb)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxUploadMB, err)
		}
		c.Server.MaxUploadMB = v
	}
	if ttl := os.Getenv(EnvResultTTL); ttl != "" {
		v, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvResultTTL, err)
		}
		c.Server.ResultTTL.Duration = v
	}
	if d := os.Getenv(EnvDebounce); d != "" {
		v, err := time.ParseDuration(d)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebounce, err)
		}
		c.Batch.Debounce.Duration = v
	}
	if prefix, ok := os.LookupEnv(EnvOutputPrefix); ok {
		c.Pipeline.OutputPrefix = prefix
	}
	return nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.MaxUploadMB <= 0 {
		problems = append(problems, "max_upload_mb must be positive")
	}
	if c.Server.ResultTTL.Duration <= 0 {
		problems = append(problems, "result_ttl must be positive")
	}
	if c.Pipeline.MaxDimension <= 0 {
		problems = append(problems, "max_dimension must be positive")
	}
	if c.Pipeline.Scale <= 0 {
		problems = append(problems, "scale must be positive")
	}
	if c.Pipeline.Quality < 1 || c.Pipeline.Quality > 100 {
		problems = append(problems, "quality must be between 1 and 100")
	}
	if _, err := c.Settings.Normalize(); err != nil {
		problems = append(problems, "settings: "+err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// PipelineConfig returns the parameters for [pipeline.New].
func (c *Config) PipelineConfig() pipeline.Config {
	res := pipeline.DefaultConfig()
	res.MaxDimension = c.Pipeline.MaxDimension
	res.Scale = c.Pipeline.Scale
	res.Quality = c.Pipeline.Quality
	res.Prefix = c.Pipeline.OutputPrefix
	return res
}
