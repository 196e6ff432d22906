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
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const (
	// keyringDirMode is the mode used to create the apt keyring
	// directory.
	keyringDirMode = os.FileMode(0755)

	// repoFileMode is applied to the keyring and the source entry:
	// apt runs its fetch methods as an unprivileged user, so both
	// files must be world readable.
	repoFileMode = os.FileMode(0644)
)

// fetchSigningKey downloads the repository signing key. The download is
// attempted exactly once; a failure aborts the run.
func fetchSigningKey(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching signing key from %v: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching signing key from %v: unexpected status %v", url, resp.Status)
	}

	key, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading signing key from %v: %v", url, err)
	}

	if len(key) == 0 {
		return nil, fmt.Errorf("signing key from %v is empty", url)
	}

	return key, nil
}

// ensureSigningKey installs the repository signing key into the apt
// keyring directory. A key that is already present is trusted as-is and
// not re-downloaded.
func ensureSigningKey(gpgURL, keyringPath string) (changed bool, err error) {
	if fileExists(keyringPath) {
		provLog.Debugf("signing key %v already installed", keyringPath)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(keyringPath), keyringDirMode); err != nil {
		return false, err
	}

	provLog.Infof("Fetching repository signing key from %v", gpgURL)

	key, err := fetchSigningKey(gpgURL)
	if err != nil {
		return false, err
	}

	if err := os.WriteFile(keyringPath, key, repoFileMode); err != nil {
		return false, err
	}

	return true, nil
}

// aptSourceLine renders the deb822-style one-line source entry for the
// vendor repository.
func aptSourceLine(arch, keyringPath, repoURL, codename, channel string) string {
	return fmt.Sprintf("deb [arch=%s signed-by=%s] %s %s %s",
		arch, keyringPath, repoURL, codename, channel)
}

// ensureAptSource writes the repository source entry, but only when the
// on-disk content differs from the rendered entry.
func ensureAptSource(sourcePath, line string) (changed bool, err error) {
	content := line + "\n"

	existing, err := os.ReadFile(sourcePath)
	if err == nil && string(existing) == content {
		provLog.Debugf("apt source %v already registered", sourcePath)
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	provLog.Infof("Registering apt source: %v", line)

	if err := os.WriteFile(sourcePath, []byte(content), repoFileMode); err != nil {
		return false, err
	}

	return true, nil
}

// registerRepository installs the signing key and the apt source entry for
// the vendor repository and reports whether anything changed on disk.
func registerRepository(config installerConfig) (changed bool, err error) {
	arch, err := dpkgArchitecture()
	if err != nil {
		return false, err
	}

	hostDistro, err := getDistroDetails()
	if err != nil {
		return false, err
	}

	if hostDistro.Codename == "" {
		return false, fmt.Errorf("cannot determine distribution codename from %v", osRelease)
	}

	keyChanged, err := ensureSigningKey(config.gpgURL, config.keyringPath)
	if err != nil {
		return false, err
	}

	line := aptSourceLine(arch, config.keyringPath, config.repositoryURL, hostDistro.Codename, config.channel)

	sourceChanged, err := ensureAptSource(config.sourcePath, line)
	if err != nil {
		return false, err
	}

	return keyChanged || sourceChanged, nil
}
