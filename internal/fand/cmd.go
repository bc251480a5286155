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

package fand

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"GpuFanD/internal/util"
)

var (
	FlagConfigFilePath string
	FlagDebugLevel     string
	FlagInterval       string
	FlagTemp           string
	FlagSpeed          string
	FlagDryRun         bool
)

func ParseCmdArgs() {
	rootCmd := &cobra.Command{
		Use:     "gpufand",
		Short:   "Daemon keeping GPU fan speeds on a temperature curve",
		Long: "gpufand polls GPU temperatures through nvidia-smi and drives the fans\n" +
			"along a clamped hysteresis curve via nvidia-settings. It provisions one\n" +
			"throwaway X server per GPU so the driver's fan-control attributes are\n" +
			"reachable on a headless host.",
		Args:    cobra.ExactArgs(0),
		Version: util.Version(),
		Run: func(cmd *cobra.Command, args []string) {
			StartFand(cmd)
		},
	}

	rootCmd.SetVersionTemplate(util.VersionTemplate())
	rootCmd.Flags().StringVarP(&FlagConfigFilePath, "config", "C",
		util.DefaultConfigPath, "Path to configuration file")
	rootCmd.Flags().StringVarP(&FlagDebugLevel, "debug-level", "D",
		"", "Available debug level: trace, debug, info, warn, error")
	rootCmd.Flags().StringVar(&FlagInterval, "interval", "", "Polling interval, e.g. 5s")
	rootCmd.Flags().StringVar(&FlagTemp, "temp", "",
		"Temperature bounds of the curve as LOW:HIGH, e.g. 50:80")
	rootCmd.Flags().StringVar(&FlagSpeed, "speed", "",
		"Speed bounds of the curve as LOW:HIGH, e.g. 30:99")
	rootCmd.Flags().BoolVar(&FlagDryRun, "dry-run", false,
		"Log fan decisions without issuing nvidia-settings commands")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(util.ErrorGeneric)
	}
}

// parseBounds parses a LOW:HIGH pair.
func parseBounds(s string) (low, high int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected LOW:HIGH, got %q", s)
	}
	if low, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("bad lower bound in %q: %w", s, err)
	}
	if high, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("bad upper bound in %q: %w", s, err)
	}
	return low, high, nil
}

// applyFlagOverrides folds command line flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *util.Config) error {
	if cmd.Flags().Changed("debug-level") {
		if err := util.CheckLogLevel(FlagDebugLevel); err != nil {
			return err
		}
		cfg.DebugLevel = FlagDebugLevel
	}
	if cmd.Flags().Changed("interval") {
		d, err := time.ParseDuration(FlagInterval)
		if err != nil {
			return fmt.Errorf("bad interval %q: %w", FlagInterval, err)
		}
		if d < time.Second {
			return fmt.Errorf("interval must be at least 1s, got %v", d)
		}
		cfg.Interval = FlagInterval
	}
	if cmd.Flags().Changed("temp") {
		low, high, err := parseBounds(FlagTemp)
		if err != nil {
			return err
		}
		cfg.Curve.TempLow, cfg.Curve.TempHigh = low, high
	}
	if cmd.Flags().Changed("speed") {
		low, high, err := parseBounds(FlagSpeed)
		if err != nil {
			return err
		}
		cfg.Curve.SpeedLow, cfg.Curve.SpeedHigh = low, high
	}
	return nil
}
