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

func TestFileExists(t *testing.T) {
	dir := t.TempDir()

	file := filepath.Join(dir, "foo")
	assert.False(t, fileExists(file))

	assert.NoError(t, createFile(file, "hello"))
	assert.True(t, fileExists(file))
}

func TestGetFileContents(t *testing.T) {
	type testData struct {
		contents string
	}

	data := []testData{
		{""},
		{" "},
		{"\n"},
		{"hello\n"},
		{"byte\nme\n"},
	}

	dir := t.TempDir()
	file := filepath.Join(dir, "foo")

	// file doesn't exist
	_, err := getFileContents(file)
	assert.Error(t, err)

	for _, d := range data {
		err := createFile(file, d.contents)
		assert.NoError(t, err)

		contents, err := getFileContents(file)
		assert.NoError(t, err)
		assert.Equal(t, d.contents, contents)
	}
}

func TestGetDistroDetails(t *testing.T) {
	type testData struct {
		contents    string
		expected    distro
		expectError bool
	}

	data := []testData{
		{"", distro{}, true},
		{"bogus line\n", distro{}, true},
		{
			`NAME="Ubuntu"
VERSION_ID="24.04"
ID=ubuntu
ID_LIKE=debian
VERSION_CODENAME=noble
`,
			distro{
				ID:       "ubuntu",
				IDLike:   []string{"debian"},
				Name:     "Ubuntu",
				Version:  "24.04",
				Codename: "noble",
			},
			false,
		},
		{
			// derivative without VERSION_CODENAME
			`NAME="Linux Mint"
VERSION_ID="21.3"
ID=linuxmint
ID_LIKE="ubuntu debian"
UBUNTU_CODENAME=jammy
`,
			distro{
				ID:       "linuxmint",
				IDLike:   []string{"ubuntu", "debian"},
				Name:     "Linux Mint",
				Version:  "21.3",
				Codename: "jammy",
			},
			false,
		},
	}

	dir := t.TempDir()

	savedOSRelease := osRelease
	defer func() {
		osRelease = savedOSRelease
	}()

	osRelease = filepath.Join(dir, "os-release")

	// file doesn't exist
	_, err := getDistroDetails()
	assert.Error(t, err)

	for i, d := range data {
		err := createFile(osRelease, d.contents)
		assert.NoError(t, err)

		result, err := getDistroDetails()
		if d.expectError {
			assert.Errorf(t, err, "test %d: %+v", i, d)
			continue
		}

		assert.NoErrorf(t, err, "test %d: %+v", i, d)
		assert.Equalf(t, d.expected, result, "test %d: %+v", i, d)
	}
}

func TestResolvePath(t *testing.T) {
	_, err := resolvePath("")
	assert.Error(t, err)

	dir := t.TempDir()

	target := filepath.Join(dir, "target")
	assert.NoError(t, createFile(target, "x"))

	link := filepath.Join(dir, "link")
	assert.NoError(t, os.Symlink(target, link))

	resolved, err := resolvePath(link)
	assert.NoError(t, err)

	expected, err := filepath.EvalSymlinks(target)
	assert.NoError(t, err)
	assert.Equal(t, expected, resolved)
}

func TestRunCommand(t *testing.T) {
	assert.NoError(t, runCommand("true"))

	err := runCommand("false")
	assert.Error(t, err)

	err = runCommand("this-command-does-not-exist")
	assert.Error(t, err)
}

func TestRunCommandOutput(t *testing.T) {
	output, err := runCommandOutput("echo", "hello")
	assert.NoError(t, err)
	assert.Equal(t, "hello", output)

	_, err = runCommandOutput("false")
	assert.Error(t, err)
}
