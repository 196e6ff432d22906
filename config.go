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

	"github.com/BurntSushi/toml"
)

// The TOML configuration file is optional: every key has a built-in
// default matching the upstream Docker installation instructions for
// Ubuntu. The file contains a number of sections (or tables):
//
//   [repository]  upstream package repository details
//   [packages]    package sets to install and to remove
//   [daemon]      daemon configuration file path and default settings
//   [verify]      verification workload
//   [log]         global log file
const defaultConfigurationPath = "/etc/docker-provision/configuration.toml"

const (
	defaultRepositoryURL = "https://download.docker.com/linux/ubuntu"
	defaultGPGURL        = "https://download.docker.com/linux/ubuntu/gpg"
	defaultKeyringPath   = "/etc/apt/keyrings/docker.asc"
	defaultSourcePath    = "/etc/apt/sources.list.d/docker.list"
	defaultChannel       = "stable"

	defaultDaemonConfigPath = "/etc/docker/daemon.json"
	defaultLogMaxSize       = "10m"
	defaultLogMaxFile       = "3"

	defaultVerifyImage = "hello-world"
)

// defaultInstallPackages are the engine packages provisioned from the
// vendor repository.
var defaultInstallPackages = []string{
	"docker-ce",
	"docker-ce-cli",
	"containerd.io",
	"docker-buildx-plugin",
	"docker-compose-plugin",
}

// defaultRemovePackages are the distribution packages that conflict with
// the vendor packages and are removed before installation.
var defaultRemovePackages = []string{
	"docker.io",
	"docker-doc",
	"docker-compose",
	"docker-compose-v2",
	"podman-docker",
	"containerd",
	"runc",
}

type tomlConfig struct {
	Repository repository
	Packages   packages
	Daemon     daemon
	Verify     verify
	Log        logSection
}

type repository struct {
	URL         string `toml:"url"`
	GPGURL      string `toml:"gpg_url"`
	KeyringPath string `toml:"keyring_path"`
	SourcePath  string `toml:"source_path"`
	Channel     string `toml:"channel"`
}

type packages struct {
	Install []string `toml:"install"`
	Remove  []string `toml:"remove"`
}

type daemon struct {
	ConfigPath string `toml:"config_path"`
	LogMaxSize string `toml:"log_max_size"`
	LogMaxFile string `toml:"log_max_file"`
}

type verify struct {
	Image string `toml:"image"`
}

type logSection struct {
	GlobalLogPath string `toml:"global_log_path"`
}

// installerConfig is the fully resolved configuration the commands operate
// on. It is immutable once loaded.
type installerConfig struct {
	repositoryURL string
	gpgURL        string
	keyringPath   string
	sourcePath    string
	channel       string

	installPackages []string
	removePackages  []string

	daemonConfigPath string
	logMaxSize       string
	logMaxFile       string

	verifyImage string

	globalLogPath string
}

func defaultInstallerConfig() installerConfig {
	return installerConfig{
		repositoryURL:    defaultRepositoryURL,
		gpgURL:           defaultGPGURL,
		keyringPath:      defaultKeyringPath,
		sourcePath:       defaultSourcePath,
		channel:          defaultChannel,
		installPackages:  defaultInstallPackages,
		removePackages:   defaultRemovePackages,
		daemonConfigPath: defaultDaemonConfigPath,
		logMaxSize:       defaultLogMaxSize,
		logMaxFile:       defaultLogMaxFile,
		verifyImage:      defaultVerifyImage,
	}
}

func updateInstallerConfig(tomlConf tomlConfig, config *installerConfig) {
	repo := tomlConf.Repository

	if repo.URL != "" {
		config.repositoryURL = repo.URL
	}
	if repo.GPGURL != "" {
		config.gpgURL = repo.GPGURL
	}
	if repo.KeyringPath != "" {
		config.keyringPath = repo.KeyringPath
	}
	if repo.SourcePath != "" {
		config.sourcePath = repo.SourcePath
	}
	if repo.Channel != "" {
		config.channel = repo.Channel
	}

	if len(tomlConf.Packages.Install) != 0 {
		config.installPackages = tomlConf.Packages.Install
	}
	if len(tomlConf.Packages.Remove) != 0 {
		config.removePackages = tomlConf.Packages.Remove
	}

	if tomlConf.Daemon.ConfigPath != "" {
		config.daemonConfigPath = tomlConf.Daemon.ConfigPath
	}
	if tomlConf.Daemon.LogMaxSize != "" {
		config.logMaxSize = tomlConf.Daemon.LogMaxSize
	}
	if tomlConf.Daemon.LogMaxFile != "" {
		config.logMaxFile = tomlConf.Daemon.LogMaxFile
	}

	if tomlConf.Verify.Image != "" {
		config.verifyImage = tomlConf.Verify.Image
	}

	config.globalLogPath = tomlConf.Log.GlobalLogPath
}

// loadConfiguration loads the configuration file and converts it into an
// installer configuration.
//
// The config file at the default path is optional; a config file path
// specified explicitly by the user must exist.
func loadConfiguration(configPath string) (resolvedConfigPath string, config installerConfig, err error) {
	config = defaultInstallerConfig()

	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigurationPath
	}

	if !fileExists(configPath) {
		if explicit {
			return "", installerConfig{}, fmt.Errorf("Config file does not exist: %v", configPath)
		}

		return "", config, nil
	}

	configContents, err := getFileContents(configPath)
	if err != nil {
		return "", installerConfig{}, err
	}

	var tomlConf tomlConfig
	if _, err := toml.Decode(configContents, &tomlConf); err != nil {
		return "", installerConfig{}, fmt.Errorf("%v: %v", configPath, err)
	}

	updateInstallerConfig(tomlConf, &config)

	return configPath, config, nil
}
