/**
 * Copyright (c) 2025 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package util

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

var (
	DefaultConfigPath     = "/etc/gpufand/config.yaml"
	DefaultPidFilePath    = "/var/run/gpufand.pid"
	DefaultStatusFilePath = "/run/gpufand/status.json"
)

type Config struct {
	Interval       string   `yaml:"Interval"`
	DebugLevel     string   `yaml:"DebugLevel"`
	LogPath        string   `yaml:"LogPath"`
	PidFilePath    string   `yaml:"PidFilePath"`
	StatusFilePath string   `yaml:"StatusFilePath"`
	Gpus           []string `yaml:"Gpus"`

	Curve CurveConfig `yaml:"Curve"`
	Xorg  XorgConfig  `yaml:"Xorg"`

	Influxdb   *InfluxdbConfig   `yaml:"Influxdb"`
	Prometheus *PrometheusConfig `yaml:"Prometheus"`
}

type CurveConfig struct {
	TempLow   int `yaml:"TempLow"`
	TempHigh  int `yaml:"TempHigh"`
	SpeedLow  int `yaml:"SpeedLow"`
	SpeedHigh int `yaml:"SpeedHigh"`
}

type XorgConfig struct {
	Binary      string `yaml:"Binary"`
	DisplayBase int    `yaml:"DisplayBase"`
	Coolbits    int    `yaml:"Coolbits"`
	StopTimeout string `yaml:"StopTimeout"`
}

type InfluxdbConfig struct {
	Url         string `yaml:"Url"`
	Token       string `yaml:"Token"`
	Org         string `yaml:"Org"`
	Bucket      string `yaml:"Bucket"`
	Measurement string `yaml:"Measurement"`
}

type PrometheusConfig struct {
	Enabled       bool   `yaml:"Enabled"`
	ListenAddress string `yaml:"ListenAddress"`
}

func DefaultConfig() *Config {
	return &Config{
		Interval:       "5s",
		DebugLevel:     "info",
		PidFilePath:    DefaultPidFilePath,
		StatusFilePath: DefaultStatusFilePath,
		Curve: CurveConfig{
			TempLow:   50,
			TempHigh:  80,
			SpeedLow:  30,
			SpeedHigh: 99,
		},
		Xorg: XorgConfig{
			Binary:      "Xorg",
			DisplayBase: 0,
			Coolbits:    20,
			StopTimeout: "10s",
		},
	}
}

// LoadConfig reads the YAML config at path on top of the defaults. A
// missing file is not an error when allowMissing is set, so the daemon
// can run with pure defaults on hosts without a config.
func LoadConfig(path string, allowMissing bool) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			log.Debugf("No config file at %s, using defaults", path)
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	wrapper := struct {
		GpuFanD *Config `yaml:"GpuFanD"`
	}{GpuFanD: config}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func validateConfig(cfg *Config) error {
	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return fmt.Errorf("invalid Interval %q: %w", cfg.Interval, err)
	}
	if interval < time.Second {
		return fmt.Errorf("Interval must be at least 1s, got %v", interval)
	}

	if cfg.Curve.TempLow >= cfg.Curve.TempHigh {
		return fmt.Errorf("Curve.TempLow must be below Curve.TempHigh")
	}
	if cfg.Curve.SpeedLow >= cfg.Curve.SpeedHigh {
		return fmt.Errorf("Curve.SpeedLow must be below Curve.SpeedHigh")
	}
	if cfg.Curve.SpeedLow <= 0 || cfg.Curve.SpeedHigh > 100 {
		return fmt.Errorf("Curve speeds must be in (0, 100]")
	}

	if cfg.Xorg.DisplayBase < 0 {
		return fmt.Errorf("Xorg.DisplayBase must not be negative")
	}
	if cfg.Xorg.StopTimeout != "" {
		if _, err := time.ParseDuration(cfg.Xorg.StopTimeout); err != nil {
			return fmt.Errorf("invalid Xorg.StopTimeout %q: %w", cfg.Xorg.StopTimeout, err)
		}
	}

	if cfg.Influxdb != nil {
		if cfg.Influxdb.Url == "" || cfg.Influxdb.Token == "" ||
			cfg.Influxdb.Org == "" || cfg.Influxdb.Bucket == "" {
			return fmt.Errorf("incomplete Influxdb configuration")
		}
		if cfg.Influxdb.Measurement == "" {
			cfg.Influxdb.Measurement = "GpuFans"
		}
	}
	if cfg.Prometheus != nil && cfg.Prometheus.Enabled && cfg.Prometheus.ListenAddress == "" {
		cfg.Prometheus.ListenAddress = ":9401"
	}

	return nil
}

// PollInterval returns the validated poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// XorgStopTimeout returns the validated X server stop timeout.
func (c *Config) XorgStopTimeout() time.Duration {
	d, err := time.ParseDuration(c.Xorg.StopTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func PrintConfig(cfg *Config) {
	log.Infof("=== Current Configuration Start ===")
	log.Infof("Interval: %v", cfg.Interval)
	log.Infof("DebugLevel: %v", cfg.DebugLevel)
	log.Infof("LogPath: %v", cfg.LogPath)
	log.Infof("PidFilePath: %v", cfg.PidFilePath)
	log.Infof("StatusFilePath: %v", cfg.StatusFilePath)
	if len(cfg.Gpus) > 0 {
		log.Infof("Gpus: %v", cfg.Gpus)
	} else {
		log.Infof("Gpus: all detected")
	}
	log.Infof("Curve: %dC -> %d%%, %dC -> %d%%",
		cfg.Curve.TempLow, cfg.Curve.SpeedLow, cfg.Curve.TempHigh, cfg.Curve.SpeedHigh)
	log.Infof("Xorg: binary %s, display base :%d, Coolbits %d",
		cfg.Xorg.Binary, cfg.Xorg.DisplayBase, cfg.Xorg.Coolbits)
	if cfg.Influxdb != nil {
		log.Infof("Influxdb: %s org %s bucket %s", cfg.Influxdb.Url, cfg.Influxdb.Org, cfg.Influxdb.Bucket)
	}
	if cfg.Prometheus != nil && cfg.Prometheus.Enabled {
		log.Infof("Prometheus: listening on %s", cfg.Prometheus.ListenAddress)
	}
	log.Infof("=== Current Configuration End ===")
}
