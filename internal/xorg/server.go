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

package xorg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nxadm/tail"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Server is the lifecycle of one throwaway X server bound to one GPU.
type Server struct {
	Bus     string
	Display string // e.g. ":1"

	binary      string
	coolbits    int
	stopTimeout time.Duration

	cmd     *exec.Cmd
	confDir string
	logTail *tail.Tail
	done    chan error
}

type ServerOptions struct {
	Binary      string // Xorg binary, default "Xorg"
	Coolbits    int
	StopTimeout time.Duration
}

func NewServer(bus string, displayNum int, opts ServerOptions) *Server {
	if opts.Binary == "" {
		opts.Binary = "Xorg"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	return &Server{
		Bus:         bus,
		Display:     ":" + strconv.Itoa(displayNum),
		binary:      opts.Binary,
		coolbits:    opts.Coolbits,
		stopTimeout: opts.StopTimeout,
	}
}

// displayNum extracts N from ":N".
func (s *Server) displayNum() int {
	n, _ := strconv.Atoi(strings.TrimPrefix(s.Display, ":"))
	return n
}

// checkDisplayFree reports an error if another X server already holds
// the display's lock file and its recorded pid is still alive.
func (s *Server) checkDisplayFree() error {
	lockPath := fmt.Sprintf("/tmp/.X%d-lock", s.displayNum())
	content, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read display lock %s: %w", lockPath, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		// Unreadable lock content from a crashed server. Xorg itself
		// will clean it up on start.
		log.Warnf("Ignoring unparsable display lock %s", lockPath)
		return nil
	}

	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return fmt.Errorf("failed to probe pid %d from %s: %w", pid, lockPath, err)
	}
	if alive {
		return fmt.Errorf("display %s is already in use by pid %d", s.Display, pid)
	}

	log.Warnf("Removing stale display lock %s (pid %d is gone)", lockPath, pid)
	os.Remove(lockPath)
	return nil
}

// Start writes the per-GPU config and launches the X server in its own
// process group. The server runs with -once so it exits when its last
// client disconnects.
func (s *Server) Start() error {
	if err := s.checkDisplayFree(); err != nil {
		return err
	}

	confPath, confDir, err := WriteConf(s.Bus, s.coolbits)
	if err != nil {
		return err
	}
	s.confDir = confDir

	cmd := exec.Command(s.binary, s.Display, "-once", "-config", confPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(confDir)
		return fmt.Errorf("failed to pipe X server output: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		os.RemoveAll(confDir)
		return fmt.Errorf("failed to start X server for GPU %s on %s: %w", s.Bus, s.Display, err)
	}
	s.cmd = cmd

	log.Infof("Started X server for GPU %s on display %s (pid %d)", s.Bus, s.Display, cmd.Process.Pid)

	go s.forwardOutput(stdout)
	s.followServerLog()

	s.done = make(chan error, 1)
	go func() { s.done <- cmd.Wait() }()

	return nil
}

// forwardOutput drains the child's combined output into the debug log.
func (s *Server) forwardOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debugf("[Xorg %s] %s", s.Display, scanner.Text())
	}
}

// followServerLog tails the X server's own log file and surfaces error
// lines, which otherwise stay buried in /var/log.
func (s *Server) followServerLog() {
	logPath := fmt.Sprintf("/var/log/Xorg.%d.log", s.displayNum())
	config := tail.Config{
		Follow:    true,  // equivalent to tail -f
		ReOpen:    true,  // reopen after rotation
		MustExist: false, // the server may not have created it yet
		Logger:    tail.DiscardingLogger,
	}

	t, err := tail.TailFile(logPath, config)
	if err != nil {
		log.Debugf("Not following %s: %v", logPath, err)
		return
	}
	s.logTail = t

	go func() {
		defer t.Cleanup()
		for line := range t.Lines {
			if line == nil || line.Err != nil {
				continue
			}
			if strings.Contains(line.Text, "(EE)") {
				log.Warnf("[Xorg %s] %s", s.Display, line.Text)
			} else {
				log.Tracef("[Xorg %s] %s", s.Display, line.Text)
			}
		}
	}()
}

// Alive reports whether the X server process is still running.
func (s *Server) Alive() bool {
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	select {
	case err := <-s.done:
		// Wait has completed; put the result back for Stop.
		s.done <- err
		return false
	default:
		return true
	}
}

// Stop terminates the X server, escalating from SIGTERM to SIGKILL after
// the stop timeout, and removes the temporary config directory.
func (s *Server) Stop() {
	if s.logTail != nil {
		s.logTail.Stop()
		s.logTail = nil
	}
	if s.confDir != "" {
		defer os.RemoveAll(s.confDir)
		s.confDir = ""
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}

	log.Infof("Terminating X server for GPU %s on display %s", s.Bus, s.Display)

	// Signal the whole process group so helpers spawned by the server
	// go down with it.
	pgid := -s.cmd.Process.Pid
	if err := unix.Kill(pgid, unix.SIGTERM); err != nil && err != unix.ESRCH {
		log.Warnf("Failed to signal X server group %d: %v", pgid, err)
	}

	select {
	case <-s.done:
	case <-time.After(s.stopTimeout):
		log.Warnf("X server on %s did not exit within %v, killing", s.Display, s.stopTimeout)
		unix.Kill(pgid, unix.SIGKILL)
		<-s.done
	}
	s.cmd = nil
}
