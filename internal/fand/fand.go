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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"GpuFanD/internal/curve"
	"GpuFanD/internal/metrics"
	"GpuFanD/internal/nvidia"
	"GpuFanD/internal/util"
	"GpuFanD/internal/xorg"
)

func StartFand(cmd *cobra.Command) {
	// A missing default config falls back to built-in defaults; an
	// explicitly given path must exist.
	allowMissing := !cmd.Flags().Changed("config")
	cfg, err := util.LoadConfig(FlagConfigFilePath, allowMissing)
	if err != nil {
		log.Errorf("Failed to load config: %v", err)
		os.Exit(util.ErrorCmdArg)
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		log.Errorf("Bad command line flags: %v", err)
		os.Exit(util.ErrorCmdArg)
	}

	util.InitLogger(cfg.DebugLevel, cfg.LogPath)
	util.PrintConfig(cfg)

	crv, err := curve.New(cfg.Curve.TempLow, cfg.Curve.TempHigh, cfg.Curve.SpeedLow, cfg.Curve.SpeedHigh)
	if err != nil {
		log.Errorf("Invalid fan curve: %v", err)
		os.Exit(util.ErrorCmdArg)
	}

	if !FlagDryRun && !util.RunningAsRoot() {
		log.Errorf("gpufand must run as root to manage X servers and fans")
		os.Exit(util.ErrorGeneric)
	}

	required := []string{"nvidia-smi"}
	if !FlagDryRun {
		required = append(required, cfg.Xorg.Binary, "nvidia-settings")
	}
	if err := util.CheckBinaries(required...); err != nil {
		log.Errorf("%v", err)
		os.Exit(util.ErrorGeneric)
	}

	smi := nvidia.NewSMI()
	buses, err := smi.Buses()
	if err != nil {
		log.Errorf("GPU enumeration failed: %v", err)
		os.Exit(util.ErrorNoGpus)
	}
	buses = filterBuses(buses, cfg.Gpus)
	if len(buses) == 0 {
		log.Errorf("No GPUs left to manage after applying the Gpus filter")
		os.Exit(util.ErrorNoGpus)
	}
	log.Infof("Managing %d GPU(s): %v", len(buses), buses)

	if !FlagDryRun {
		if err := ensurePidFileFree(cfg.PidFilePath); err != nil {
			log.Errorf("%v", err)
			os.Exit(util.ErrorGeneric)
		}
		if err := util.WritePidFile(cfg.PidFilePath); err != nil {
			log.Errorf("%v", err)
			os.Exit(util.ErrorGeneric)
		}
		defer util.RemoveFileIfExists(cfg.PidFilePath)
	}

	manager := xorg.NewManager(buses, cfg.Xorg.DisplayBase, xorg.ServerOptions{
		Binary:      cfg.Xorg.Binary,
		Coolbits:    cfg.Xorg.Coolbits,
		StopTimeout: cfg.XorgStopTimeout(),
	})
	if !FlagDryRun {
		if err := manager.Start(); err != nil {
			log.Errorf("Failed to provision X servers: %v", err)
			util.RemoveFileIfExists(cfg.PidFilePath)
			os.Exit(util.ErrorXorg)
		}
		defer manager.Shutdown()
	}

	sinks := metrics.BuildSinks(cfg)
	defer metrics.CloseAll(sinks)

	controller := NewController(smi, nvidia.NewSettings(), ControllerOptions{
		Curve:    crv,
		Interval: cfg.PollInterval(),
		Displays: manager.Displays(),
		Sinks:    sinks,
		Status:   NewStatusWriter(cfg.StatusFilePath),
		DryRun:   FlagDryRun,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		controller.Run(ctx)
		close(done)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigs
		if sig == syscall.SIGHUP {
			reloadConfig(cmd, controller)
			continue
		}

		log.Infof("Received %s, releasing fans and shutting down...", sig)
		cancel()
		<-done
		return
	}
}

// ensurePidFileFree refuses to start when another daemon instance still
// owns the pid file. A leftover file from a dead process is removed.
func ensurePidFileFree(path string) error {
	pid, err := util.ReadPidFile(path)
	if err != nil {
		// No readable pid file, nothing to contend with.
		return nil
	}

	alive, err := process.PidExists(int32(pid))
	if err == nil && alive {
		return fmt.Errorf("gpufand appears to be running already (pid %d in %s)", pid, path)
	}

	log.Warnf("Removing stale pid file %s (pid %d is gone)", path, pid)
	util.RemoveFileIfExists(path)
	return nil
}

// reloadConfig re-reads the config file and swaps the curve and interval
// in the running controller. X servers and sinks are left alone; those
// need a restart to change.
func reloadConfig(cmd *cobra.Command, controller *Controller) {
	log.Info("Received SIGHUP, reloading config...")

	cfg, err := util.LoadConfig(FlagConfigFilePath, !cmd.Flags().Changed("config"))
	if err != nil {
		log.Errorf("Keeping previous config, reload failed: %v", err)
		return
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		log.Errorf("Keeping previous config, reload failed: %v", err)
		return
	}

	crv, err := curve.New(cfg.Curve.TempLow, cfg.Curve.TempHigh, cfg.Curve.SpeedLow, cfg.Curve.SpeedHigh)
	if err != nil {
		log.Errorf("Keeping previous curve, reload failed: %v", err)
		return
	}

	controller.Reconfigure(crv, cfg.PollInterval())
}

// filterBuses applies the optional whitelist from the config.
func filterBuses(buses, allowed []string) []string {
	if len(allowed) == 0 {
		return buses
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, bus := range allowed {
		allowedSet[bus] = true
	}

	var out []string
	for _, bus := range buses {
		if allowedSet[bus] {
			out = append(out, bus)
			delete(allowedSet, bus)
		}
	}
	for bus := range allowedSet {
		log.Warnf("Configured GPU %s was not detected", bus)
	}
	return out
}
