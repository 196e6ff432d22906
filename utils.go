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
	"path/filepath"
	"strings"
)

const unknown = "<<unknown>>"

// variables to allow tests to modify the values
var osRelease = "/etc/os-release"

func fileExists(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}

	return true
}

func getFileContents(file string) (string, error) {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	return string(bytes), nil
}

// distro stores host operating system release details.
type distro struct {
	// ID is the lower-case distribution identifier ("ubuntu").
	ID string

	// IDLike lists the distributions this one is derived from.
	IDLike []string

	// Name is the human readable distribution name.
	Name string

	// Version is the release version ("24.04").
	Version string

	// Codename is the release codename used in apt source entries
	// ("noble").
	Codename string
}

// getDistroDetails parses the os-release file of the host.
func getDistroDetails() (distro, error) {
	contents, err := getFileContents(osRelease)
	if err != nil {
		return distro{}, err
	}

	values := map[string]string{}

	for _, line := range strings.Split(contents, "\n") {
		fields := strings.SplitN(line, "=", 2)
		if len(fields) != 2 {
			continue
		}

		values[fields[0]] = strings.Trim(fields[1], `"`)
	}

	d := distro{
		ID:       values["ID"],
		Name:     values["NAME"],
		Version:  values["VERSION_ID"],
		Codename: values["VERSION_CODENAME"],
	}

	if like := values["ID_LIKE"]; like != "" {
		d.IDLike = strings.Fields(like)
	}

	if d.Codename == "" {
		// Derivatives (Mint et al) carry the upstream codename here.
		d.Codename = values["UBUNTU_CODENAME"]
	}

	if d.ID == "" {
		return distro{}, fmt.Errorf("failed to find an ID field in %v", osRelease)
	}

	return d, nil
}

// resolvePath returns the fully resolved and expanded value of the
// specified path.
func resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path must be specified")
	}

	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", err
	}

	return resolved, nil
}

// runCommand runs the specified external command to completion, logging its
// output at debug level. Every external call is attempted exactly once.
func runCommand(cmdName string, args ...string) error {
	provLog.Debugf("running %v %v", cmdName, args)

	cmd := exec.Command(cmdName, args...)
	output, err := cmd.CombinedOutput()

	if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
		provLog.Debug(trimmed)
	}

	if err != nil {
		return fmt.Errorf("%v %v failed: %v: %s",
			cmdName, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}

	return nil
}

// runCommandOutput runs the specified external command and returns its
// trimmed standard output.
func runCommandOutput(cmdName string, args ...string) (string, error) {
	provLog.Debugf("running %v %v", cmdName, args)

	output, err := exec.Command(cmdName, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%v %v failed: %v",
			cmdName, strings.Join(args, " "), err)
	}

	return strings.TrimSpace(string(output)), nil
}
