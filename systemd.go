// Copyright (c) 2024 docker-provision authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Description: Service management through systemd's D-Bus API. The
// systemdManager indirection is required to allow an alternative
// implementation to be used for testing purposes.

package main

import (
	"context"
	"fmt"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
)

const (
	dockerUnit     = "docker.service"
	containerdUnit = "containerd.service"
)

// dockerUnits are the units enabled so the engine comes up on boot.
var dockerUnits = []string{dockerUnit, containerdUnit}

// systemdManager is the subset of the systemd API the provisioner needs.
type systemdManager interface {
	// EnableUnits enables the named units and reports whether any
	// enablement symlink changed.
	EnableUnits(ctx context.Context, units []string) (bool, error)

	// ReloadDaemon reloads the systemd manager configuration.
	ReloadDaemon(ctx context.Context) error

	// StartUnit starts the named unit and waits for the job to finish.
	StartUnit(ctx context.Context, unit string) error

	// RestartUnit restarts the named unit and waits for the job to
	// finish.
	RestartUnit(ctx context.Context, unit string) error

	// UnitActive reports whether the named unit is currently active.
	UnitActive(ctx context.Context, unit string) (bool, error)

	// Close releases the underlying connection.
	Close()
}

// newSystemdManager connects to the system bus. It is a variable to allow
// tests to substitute a fake manager.
var newSystemdManager = func(ctx context.Context) (systemdManager, error) {
	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to systemd: %v", err)
	}

	return &sdDbusManager{conn: conn}, nil
}

// sdDbusManager is the real systemdManager implementation.
type sdDbusManager struct {
	conn *sddbus.Conn
}

func (m *sdDbusManager) EnableUnits(ctx context.Context, units []string) (bool, error) {
	_, changes, err := m.conn.EnableUnitFilesContext(ctx, units, false, false)
	if err != nil {
		return false, fmt.Errorf("enabling units %v: %v", units, err)
	}

	return len(changes) > 0, nil
}

func (m *sdDbusManager) ReloadDaemon(ctx context.Context) error {
	return m.conn.ReloadContext(ctx)
}

func (m *sdDbusManager) StartUnit(ctx context.Context, unit string) error {
	return m.runJob(ctx, unit, "start", m.conn.StartUnitContext)
}

func (m *sdDbusManager) RestartUnit(ctx context.Context, unit string) error {
	return m.runJob(ctx, unit, "restart", m.conn.RestartUnitContext)
}

// runJob queues a unit job and waits for its result.
func (m *sdDbusManager) runJob(ctx context.Context, unit, verb string,
	queue func(context.Context, string, string, chan<- string) (int, error)) error {

	result := make(chan string, 1)

	if _, err := queue(ctx, unit, "replace", result); err != nil {
		return fmt.Errorf("%v %v: %v", verb, unit, err)
	}

	if r := <-result; r != "done" {
		return fmt.Errorf("%v %v: job finished with result %q", verb, unit, r)
	}

	return nil
}

func (m *sdDbusManager) UnitActive(ctx context.Context, unit string) (bool, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return false, fmt.Errorf("querying %v: %v", unit, err)
	}

	state, ok := prop.Value.Value().(string)
	if !ok {
		return false, fmt.Errorf("querying %v: unexpected ActiveState type", unit)
	}

	return state == "active", nil
}

func (m *sdDbusManager) Close() {
	m.conn.Close()
}

// enableServices enables the engine units, reloading the manager when the
// enablement state changed.
func enableServices(ctx context.Context, mgr systemdManager) error {
	provLog.Infof("Enabling services %v", dockerUnits)

	changed, err := mgr.EnableUnits(ctx, dockerUnits)
	if err != nil {
		return err
	}

	if changed {
		if err := mgr.ReloadDaemon(ctx); err != nil {
			return fmt.Errorf("reloading systemd: %v", err)
		}
	}

	return nil
}

// startOrRestartDocker brings the engine up. A changed daemon
// configuration forces a restart so the new settings take effect; an
// unchanged configuration only starts the unit when it is not already
// running, avoiding an unnecessary service interruption.
func startOrRestartDocker(ctx context.Context, mgr systemdManager, configChanged bool) error {
	if configChanged {
		provLog.Infof("Restarting %v to apply configuration changes", dockerUnit)
		return mgr.RestartUnit(ctx, dockerUnit)
	}

	active, err := mgr.UnitActive(ctx, dockerUnit)
	if err != nil {
		return err
	}

	if active {
		provLog.Debugf("%v already running", dockerUnit)
		return nil
	}

	provLog.Infof("Starting %v", dockerUnit)

	return mgr.StartUnit(ctx, dockerUnit)
}
