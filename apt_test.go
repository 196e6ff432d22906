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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackageInstalled(t *testing.T) {
	dir := t.TempDir()

	savedDpkgQueryCmd := dpkgQueryCmd
	defer func() {
		dpkgQueryCmd = savedDpkgQueryCmd
	}()

	// fully installed
	dpkgQueryCmd = createStubCommand(t, dir, "dpkg-query-installed",
		`printf 'install ok installed'`)
	assert.True(t, packageInstalled("docker.io"))

	// removed but not purged
	dpkgQueryCmd = createStubCommand(t, dir, "dpkg-query-removed",
		`printf 'deinstall ok config-files'`)
	assert.False(t, packageInstalled("docker.io"))

	// unknown package
	dpkgQueryCmd = createStubCommand(t, dir, "dpkg-query-unknown",
		`echo "dpkg-query: no packages found" >&2; exit 1`)
	assert.False(t, packageInstalled("docker.io"))
}

func TestRemoveConflictingPackages(t *testing.T) {
	dir := t.TempDir()

	savedDpkgQueryCmd := dpkgQueryCmd
	savedAptGetCmd := aptGetCmd
	defer func() {
		dpkgQueryCmd = savedDpkgQueryCmd
		aptGetCmd = savedAptGetCmd
	}()

	removeLog := filepath.Join(dir, "removed.log")

	// only "containerd" is installed
	dpkgQueryCmd = createStubCommand(t, dir, "dpkg-query",
		`case "$4" in containerd) printf 'install ok installed';; *) exit 1;; esac`)
	aptGetCmd = createStubCommand(t, dir, "apt-get",
		`echo "$@" >> `+removeLog)

	err := removeConflictingPackages([]string{"docker.io", "containerd", "runc"})
	assert.NoError(t, err)

	contents, err := os.ReadFile(removeLog)
	assert.NoError(t, err)

	// only the installed package was removed
	assert.Equal(t, "remove -y containerd\n", string(contents))
}

func TestRemoveConflictingPackagesNoneInstalled(t *testing.T) {
	dir := t.TempDir()

	savedDpkgQueryCmd := dpkgQueryCmd
	savedAptGetCmd := aptGetCmd
	defer func() {
		dpkgQueryCmd = savedDpkgQueryCmd
		aptGetCmd = savedAptGetCmd
	}()

	dpkgQueryCmd = createStubCommand(t, dir, "dpkg-query", `exit 1`)

	// apt-get must never run
	aptGetCmd = createStubCommand(t, dir, "apt-get", `exit 1`)

	err := removeConflictingPackages([]string{"docker.io", "podman-docker"})
	assert.NoError(t, err)
}

func TestRemoveConflictingPackagesFailure(t *testing.T) {
	dir := t.TempDir()

	savedDpkgQueryCmd := dpkgQueryCmd
	savedAptGetCmd := aptGetCmd
	defer func() {
		dpkgQueryCmd = savedDpkgQueryCmd
		aptGetCmd = savedAptGetCmd
	}()

	dpkgQueryCmd = createStubCommand(t, dir, "dpkg-query",
		`printf 'install ok installed'`)
	aptGetCmd = createStubCommand(t, dir, "apt-get",
		`echo "removal failed" >&2; exit 100`)

	err := removeConflictingPackages([]string{"docker.io"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "removal failed")
}

func TestInstallPackages(t *testing.T) {
	dir := t.TempDir()

	savedAptGetCmd := aptGetCmd
	defer func() {
		aptGetCmd = savedAptGetCmd
	}()

	installLog := filepath.Join(dir, "install.log")

	aptGetCmd = createStubCommand(t, dir, "apt-get",
		`echo "$@" >> `+installLog+`; [ -n "$DEBIAN_FRONTEND" ] || exit 1`)

	err := installPackages([]string{"docker-ce", "docker-ce-cli"})
	assert.NoError(t, err)

	contents, err := os.ReadFile(installLog)
	assert.NoError(t, err)
	assert.Equal(t, "install -y -q docker-ce docker-ce-cli\n", string(contents))
}

func TestInstallPackagesEmptyList(t *testing.T) {
	err := installPackages(nil)
	assert.Error(t, err)
}

func TestUpdatePackageIndex(t *testing.T) {
	dir := t.TempDir()

	savedAptGetCmd := aptGetCmd
	defer func() {
		aptGetCmd = savedAptGetCmd
	}()

	updateLog := filepath.Join(dir, "update.log")

	aptGetCmd = createStubCommand(t, dir, "apt-get",
		`echo "$@" >> `+updateLog)

	assert.NoError(t, updatePackageIndex())

	contents, err := os.ReadFile(updateLog)
	assert.NoError(t, err)
	assert.Equal(t, "update\n", string(contents))
}

func TestDpkgArchitecture(t *testing.T) {
	dir := t.TempDir()

	savedDpkgCmd := dpkgCmd
	defer func() {
		dpkgCmd = savedDpkgCmd
	}()

	dpkgCmd = createStubCommand(t, dir, "dpkg", `echo amd64`)

	arch, err := dpkgArchitecture()
	assert.NoError(t, err)
	assert.Equal(t, "amd64", arch)

	dpkgCmd = createStubCommand(t, dir, "dpkg-empty", `echo`)

	_, err = dpkgArchitecture()
	assert.Error(t, err)

	dpkgCmd = createStubCommand(t, dir, "dpkg-fail", `exit 2`)

	_, err = dpkgArchitecture()
	assert.Error(t, err)
}
