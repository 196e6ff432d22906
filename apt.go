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
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// variables rather than consts to allow tests to modify them
var (
	aptGetCmd    = "apt-get"
	dpkgCmd      = "dpkg"
	dpkgQueryCmd = "dpkg-query"
)

// installedStatus is what dpkg-query reports for a package that is fully
// installed.
const installedStatus = "install ok installed"

// runAptGet runs apt-get noninteractively so provisioning never blocks on
// a debconf prompt.
func runAptGet(args ...string) error {
	provLog.Debugf("running %v %v", aptGetCmd, args)

	cmd := exec.Command(aptGetCmd, args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")

	output, err := cmd.CombinedOutput()

	if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
		provLog.Debug(trimmed)
	}

	if err != nil {
		return fmt.Errorf("%v %v failed: %v: %s",
			aptGetCmd, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}

	return nil
}

// packageInstalled reports whether the named package is fully installed.
// An unknown package makes dpkg-query fail, which counts as not installed.
func packageInstalled(pkg string) bool {
	output, err := exec.Command(dpkgQueryCmd, "-W", "-f", "${Status}", pkg).Output()
	if err != nil {
		return false
	}

	return strings.Contains(string(output), installedStatus)
}

// removeConflictingPackages removes every listed package that is currently
// installed. Packages that are not installed are skipped, keeping repeated
// runs idempotent.
func removeConflictingPackages(pkgs []string) error {
	for _, pkg := range pkgs {
		if !packageInstalled(pkg) {
			provLog.Debugf("conflicting package %q not installed", pkg)
			continue
		}

		provLog.Infof("Removing conflicting package %q", pkg)

		if err := runAptGet("remove", "-y", pkg); err != nil {
			return err
		}
	}

	return nil
}

// updatePackageIndex refreshes the apt package lists.
func updatePackageIndex() error {
	provLog.Info("Updating package index")

	return runAptGet("update")
}

// installPackages installs the listed packages in a single transaction.
func installPackages(pkgs []string) error {
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages to install")
	}

	provLog.Infof("Installing packages %v", pkgs)

	args := append([]string{"install", "-y", "-q"}, pkgs...)

	return runAptGet(args...)
}

// dpkgArchitecture returns the primary dpkg architecture of the host
// ("amd64", "arm64", ...), which is the value the apt source entry needs.
func dpkgArchitecture() (string, error) {
	arch, err := runCommandOutput(dpkgCmd, "--print-architecture")
	if err != nil {
		return "", err
	}

	if arch == "" {
		return "", fmt.Errorf("cannot determine dpkg architecture")
	}

	return arch, nil
}
