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

// Package fanctl is the inspection CLI that accompanies the daemon: it
// lists GPUs, previews the fan curve, and reads the daemon status file.
package fanctl

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"GpuFanD/internal/util"
)

var (
	FlagConfigFilePath string
	FlagJson           bool
	FlagTree           bool
	FlagStep           int
)

var RootCmd = &cobra.Command{
	Use:     "gpufanctl",
	Short:   "Inspect GPUs and the gpufand daemon",
	Version: util.Version(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.InitLogger("info", "")
	},
}

func ParseCmdArgs() {
	RootCmd.SetVersionTemplate(util.VersionTemplate())
	RootCmd.PersistentFlags().StringVarP(&FlagConfigFilePath, "config", "C",
		util.DefaultConfigPath, "Path to configuration file")

	gpusCmd := &cobra.Command{
		Use:   "gpus",
		Short: "List the GPUs nvidia-smi reports",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			if err := showGpus(); err != nil {
				log.Errorf("%v", err)
				os.Exit(util.ErrorGeneric)
			}
		},
	}
	gpusCmd.Flags().BoolVar(&FlagJson, "json", false, "Output JSON")
	gpusCmd.Flags().BoolVar(&FlagTree, "tree", false, "Output a per-GPU tree")

	curveCmd := &cobra.Command{
		Use:   "curve",
		Short: "Preview the configured fan curve band",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			if err := showCurve(); err != nil {
				log.Errorf("%v", err)
				os.Exit(util.ErrorCmdArg)
			}
		},
	}
	curveCmd.Flags().IntVar(&FlagStep, "step", 5, "Temperature step between rows")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's last control decisions",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			if err := showStatus(); err != nil {
				log.Errorf("%v", err)
				os.Exit(util.ErrorGeneric)
			}
		},
	}

	RootCmd.AddCommand(gpusCmd, curveCmd, statusCmd)

	if err := RootCmd.Execute(); err != nil {
		os.Exit(util.ErrorGeneric)
	}
}
