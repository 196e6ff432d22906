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

	"github.com/urfave/cli"
)

// geteuid is a variable to allow tests to fake the effective user id.
var geteuid = os.Geteuid

// supportedDistros maps a distribution ID the provisioner supports to a
// human-readable description. Derivatives are accepted through ID_LIKE.
var supportedDistros = map[string]string{
	"ubuntu": "Ubuntu",
	"debian": "Debian",
}

// supportedArchitectures lists the dpkg architectures the vendor
// repository publishes packages for.
var supportedArchitectures = map[string]bool{
	"amd64":   true,
	"arm64":   true,
	"armhf":   true,
	"ppc64el": true,
	"s390x":   true,
}

// requiredTools maps each required host tool to a human-readable
// description of what it is used for. Built from the package-level command
// variables so tests exercise the same values the provisioner runs.
func requiredTools() map[string]string {
	return map[string]string{
		aptGetCmd:    "package installation",
		dpkgCmd:      "architecture detection",
		dpkgQueryCmd: "package state queries",
		groupAddCmd:  "docker group creation",
		userModCmd:   "group membership changes",
	}
}

func checkPrivilege() error {
	if geteuid() != 0 {
		return fmt.Errorf("%s must be run as root", name)
	}

	return nil
}

func checkDistro(d distro) error {
	if _, ok := supportedDistros[d.ID]; ok {
		provLog.Infof("Found supported distribution %q (%s)", d.ID, d.Name)
		return nil
	}

	for _, like := range d.IDLike {
		if desc, ok := supportedDistros[like]; ok {
			provLog.Infof("Found %s derivative %q (%s)", desc, d.ID, d.Name)
			return nil
		}
	}

	return fmt.Errorf("distribution %q (%s) is not apt-based or not supported", d.ID, d.Name)
}

func checkArchitecture() error {
	arch, err := dpkgArchitecture()
	if err != nil {
		return err
	}

	if !supportedArchitectures[arch] {
		return fmt.Errorf("architecture %q has no packages in the vendor repository", arch)
	}

	provLog.Infof("Found supported architecture %q", arch)

	return nil
}

func checkTools(tools map[string]string) error {
	for tool, desc := range tools {
		path, err := exec.LookPath(tool)
		if err != nil {
			return fmt.Errorf("required tool %q (%s) not found", tool, desc)
		}

		provLog.Infof("Found %q (%s) at %v", tool, desc, path)
	}

	return nil
}

// hostCanBeProvisioned determines if the system is capable of being
// provisioned with the engine: root privilege, a supported apt-based
// distribution, a supported architecture and the required host tools.
func hostCanBeProvisioned() error {
	if err := checkPrivilege(); err != nil {
		return err
	}

	hostDistro, err := getDistroDetails()
	if err != nil {
		return err
	}

	if err := checkDistro(hostDistro); err != nil {
		return err
	}

	if err := checkArchitecture(); err != nil {
		return err
	}

	if err := checkTools(requiredTools()); err != nil {
		return err
	}

	return nil
}

var checkCommand = cli.Command{
	Name:  "check",
	Usage: "tests if " + project + " can be provisioned on this system",
	Action: func(context *cli.Context) error {
		err := hostCanBeProvisioned()
		if err != nil {
			return fmt.Errorf("ERROR: %v", err)
		}

		provLog.Info("")
		provLog.Info("System can be provisioned with " + project)

		return nil
	},
}
