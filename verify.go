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
)

// dockerCmd is a variable rather than a const to allow tests to modify it
var dockerCmd = "docker"

// verifyInstallation checks that the freshly provisioned engine actually
// works: the daemon must be reachable and the verification workload must
// run to a zero exit status.
func verifyInstallation(image string) error {
	if err := runCommand(dockerCmd, "info"); err != nil {
		return fmt.Errorf("daemon not reachable: %v", err)
	}

	provLog.Infof("Running verification workload %q", image)

	if err := runCommand(dockerCmd, "run", "--rm", image); err != nil {
		return fmt.Errorf("verification workload %q failed: %v", image, err)
	}

	provLog.Info("Verification workload succeeded")

	return nil
}
