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
	"os/user"
)

// dockerGroup is the group whose members may talk to the engine socket.
const dockerGroup = "docker"

// variables rather than consts to allow tests to modify them
var (
	groupAddCmd = "groupadd"
	userModCmd  = "usermod"
)

func groupExists(group string) bool {
	_, err := user.LookupGroup(group)

	return err == nil
}

// ensureDockerGroup creates the docker group when it does not already
// exist. The engine package normally creates it; this covers hosts where
// the postinst script was skipped.
func ensureDockerGroup() error {
	if groupExists(dockerGroup) {
		provLog.Debugf("group %q already exists", dockerGroup)
		return nil
	}

	provLog.Infof("Creating group %q", dockerGroup)

	return runCommand(groupAddCmd, dockerGroup)
}

// userInGroup reports whether the named user is a member of the named
// group (through any of its group IDs, primary included).
func userInGroup(username, group string) (bool, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return false, err
	}

	g, err := user.LookupGroup(group)
	if err != nil {
		return false, err
	}

	ids, err := u.GroupIds()
	if err != nil {
		return false, err
	}

	for _, id := range ids {
		if id == g.Gid {
			return true, nil
		}
	}

	return false, nil
}

// resolveTargetUser picks the account to add to the docker group: an
// explicit --user value wins, otherwise the account that invoked sudo.
func resolveTargetUser(flagUser string) string {
	if flagUser != "" {
		return flagUser
	}

	return os.Getenv("SUDO_USER")
}

// addUserToDockerGroup adds the named user to the docker group.
//
// An empty username is not fatal: a run started directly from a root
// shell has no invoking user, and group membership is a convenience, not
// a requirement.
func addUserToDockerGroup(username string) error {
	if username == "" {
		provLog.Warn("no user to add to the docker group (run via sudo or pass --user)")
		return nil
	}

	member, err := userInGroup(username, dockerGroup)
	if err == nil && member {
		provLog.Infof("User %q already a member of group %q", username, dockerGroup)
		return nil
	}

	provLog.Infof("Adding user %q to group %q", username, dockerGroup)

	if err := runCommand(userModCmd, "-aG", dockerGroup, username); err != nil {
		return err
	}

	provLog.Infof("User %q must log out and back in for the group change to take effect", username)

	return nil
}
