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

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeSystemdManager records the calls made to it and plays back
// configured results.
type fakeSystemdManager struct {
	calls []string

	enableChanged bool
	enableErr     error
	reloadErr     error
	startErr      error
	restartErr    error
	active        bool
	activeErr     error
	closed        bool
}

func (m *fakeSystemdManager) EnableUnits(ctx context.Context, units []string) (bool, error) {
	m.calls = append(m.calls, "enable")
	return m.enableChanged, m.enableErr
}

func (m *fakeSystemdManager) ReloadDaemon(ctx context.Context) error {
	m.calls = append(m.calls, "reload")
	return m.reloadErr
}

func (m *fakeSystemdManager) StartUnit(ctx context.Context, unit string) error {
	m.calls = append(m.calls, "start "+unit)
	return m.startErr
}

func (m *fakeSystemdManager) RestartUnit(ctx context.Context, unit string) error {
	m.calls = append(m.calls, "restart "+unit)
	return m.restartErr
}

func (m *fakeSystemdManager) UnitActive(ctx context.Context, unit string) (bool, error) {
	m.calls = append(m.calls, "query "+unit)
	return m.active, m.activeErr
}

func (m *fakeSystemdManager) Close() {
	m.closed = true
}

func TestEnableServices(t *testing.T) {
	ctx := context.Background()

	// nothing changed: no reload
	mgr := &fakeSystemdManager{}
	assert.NoError(t, enableServices(ctx, mgr))
	assert.Equal(t, []string{"enable"}, mgr.calls)

	// enablement changed: reload required
	mgr = &fakeSystemdManager{enableChanged: true}
	assert.NoError(t, enableServices(ctx, mgr))
	assert.Equal(t, []string{"enable", "reload"}, mgr.calls)

	// enable failure propagates
	mgr = &fakeSystemdManager{enableErr: assert.AnError}
	assert.Error(t, enableServices(ctx, mgr))

	// reload failure propagates
	mgr = &fakeSystemdManager{enableChanged: true, reloadErr: assert.AnError}
	assert.Error(t, enableServices(ctx, mgr))
}

func TestStartOrRestartDocker(t *testing.T) {
	type testData struct {
		configChanged bool
		active        bool
		expectedCalls []string
	}

	data := []testData{
		// changed config always restarts, without querying state
		{true, false, []string{"restart " + dockerUnit}},
		{true, true, []string{"restart " + dockerUnit}},

		// unchanged config starts only when inactive
		{false, false, []string{"query " + dockerUnit, "start " + dockerUnit}},
		{false, true, []string{"query " + dockerUnit}},
	}

	ctx := context.Background()

	for i, d := range data {
		mgr := &fakeSystemdManager{active: d.active}

		err := startOrRestartDocker(ctx, mgr, d.configChanged)
		assert.NoErrorf(t, err, "test %d: %+v", i, d)
		assert.Equalf(t, d.expectedCalls, mgr.calls, "test %d: %+v", i, d)
	}
}

func TestStartOrRestartDockerFailures(t *testing.T) {
	ctx := context.Background()

	mgr := &fakeSystemdManager{restartErr: assert.AnError}
	assert.Error(t, startOrRestartDocker(ctx, mgr, true))

	mgr = &fakeSystemdManager{activeErr: assert.AnError}
	assert.Error(t, startOrRestartDocker(ctx, mgr, false))

	mgr = &fakeSystemdManager{startErr: assert.AnError}
	assert.Error(t, startOrRestartDocker(ctx, mgr, false))
}
