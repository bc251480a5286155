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
	log "github.com/sirupsen/logrus"
)

// Manager owns one Server per GPU and the bus -> display assignment.
type Manager struct {
	servers  []*Server
	displays map[string]string
}

// NewManager assigns displays :base, :base+1, ... to the given buses in
// order. Servers are not started yet.
func NewManager(buses []string, displayBase int, opts ServerOptions) *Manager {
	m := &Manager{displays: make(map[string]string, len(buses))}
	for i, bus := range buses {
		srv := NewServer(bus, displayBase+i, opts)
		m.servers = append(m.servers, srv)
		m.displays[bus] = srv.Display
	}
	return m
}

// Displays returns the bus ID -> display mapping.
func (m *Manager) Displays() map[string]string {
	out := make(map[string]string, len(m.displays))
	for bus, d := range m.displays {
		out[bus] = d
	}
	return out
}

// Start launches all X servers. If any server fails to start, the ones
// already running are stopped and the error is returned.
func (m *Manager) Start() error {
	for i, srv := range m.servers {
		if err := srv.Start(); err != nil {
			log.Errorf("Failed to start X server for GPU %s: %v", srv.Bus, err)
			for j := i - 1; j >= 0; j-- {
				m.servers[j].Stop()
			}
			return err
		}
	}
	return nil
}

// Shutdown stops all X servers in reverse start order.
func (m *Manager) Shutdown() {
	for i := len(m.servers) - 1; i >= 0; i-- {
		srv := m.servers[i]
		if srv.cmd != nil && !srv.Alive() {
			log.Warnf("X server for GPU %s on %s exited before shutdown", srv.Bus, srv.Display)
		}
		srv.Stop()
	}
}
