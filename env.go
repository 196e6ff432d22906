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
	"errors"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli"
)

// Semantic version for the output of the "env" command.
//
// XXX: Increment for every change to the output format
// (meaning any change to the EnvInfo type).
const formatVersion = "1.0.0"

// defaultOutputFile is the default output file to write the gathered
// information to.
var defaultOutputFile = os.Stdout

// MetaInfo stores information on the format of the output itself
type MetaInfo struct {
	// output format version
	Version string
}

// ProvisionerInfo stores provisioner details
type ProvisionerInfo struct {
	Version string
	Commit  string
	Config  string
}

// DistroInfo stores host operating system distribution details.
type DistroInfo struct {
	Name     string
	Version  string
	Codename string
}

// HostInfo stores host details
type HostInfo struct {
	Architecture  string
	Distro        DistroInfo
	Provisionable bool
}

// RepositoryInfo stores the vendor repository registration details.
type RepositoryInfo struct {
	URL              string
	Channel          string
	KeyringPath      string
	SourcePath       string
	KeyringInstalled bool
	SourceInstalled  bool
}

// DaemonInfo stores daemon configuration and service state.
type DaemonInfo struct {
	ConfigPath      string
	ConfigExists    bool
	DefaultsApplied bool
	ServiceActive   bool
}

// EnvInfo collects all information that will be displayed by the
// "env" command.
//
// XXX: Any changes must be coupled with a change to formatVersion.
type EnvInfo struct {
	Meta        MetaInfo
	Provisioner ProvisionerInfo
	Host        HostInfo
	Repository  RepositoryInfo
	Daemon      DaemonInfo
}

func getMetaInfo() MetaInfo {
	return MetaInfo{
		Version: formatVersion,
	}
}

func getProvisionerInfo(configFile string) ProvisionerInfo {
	provisionerVersion := version
	if provisionerVersion == "" {
		provisionerVersion = unknown
	}

	provisionerCommit := commit
	if provisionerCommit == "" {
		provisionerCommit = unknown
	}

	return ProvisionerInfo{
		Version: provisionerVersion,
		Commit:  provisionerCommit,
		Config:  configFile,
	}
}

func getHostInfo() (HostInfo, error) {
	hostDistro, err := getDistroDetails()
	if err != nil {
		return HostInfo{}, err
	}

	arch, err := dpkgArchitecture()
	if err != nil {
		arch = unknown
	}

	provisionable := true
	if err := hostCanBeProvisioned(); err != nil {
		provisionable = false
	}

	return HostInfo{
		Architecture: arch,
		Distro: DistroInfo{
			Name:     hostDistro.Name,
			Version:  hostDistro.Version,
			Codename: hostDistro.Codename,
		},
		Provisionable: provisionable,
	}, nil
}

func getRepositoryInfo(config installerConfig) RepositoryInfo {
	return RepositoryInfo{
		URL:              config.repositoryURL,
		Channel:          config.channel,
		KeyringPath:      config.keyringPath,
		SourcePath:       config.sourcePath,
		KeyringInstalled: fileExists(config.keyringPath),
		SourceInstalled:  fileExists(config.sourcePath),
	}
}

func getDaemonInfo(config installerConfig) DaemonInfo {
	info := DaemonInfo{
		ConfigPath:   config.daemonConfigPath,
		ConfigExists: fileExists(config.daemonConfigPath),
	}

	if content, err := os.ReadFile(config.daemonConfigPath); err == nil {
		// the defaults are applied when re-applying them would be a
		// no-op
		_, changed := computeDaemonConfig(content, true, daemonConfigUpdate{
			applyDefaults: true,
			logMaxSize:    config.logMaxSize,
			logMaxFile:    config.logMaxFile,
		})

		info.DefaultsApplied = !changed
	}

	// service state is informational only; a host without systemd
	// reachable simply reports inactive
	if mgr, err := newSystemdManager(context.Background()); err == nil {
		defer mgr.Close()

		if active, err := mgr.UnitActive(context.Background(), dockerUnit); err == nil {
			info.ServiceActive = active
		}
	}

	return info
}

func getEnvInfo(configFile string, config installerConfig) (env EnvInfo, err error) {
	host, err := getHostInfo()
	if err != nil {
		return EnvInfo{}, err
	}

	env = EnvInfo{
		Meta:        getMetaInfo(),
		Provisioner: getProvisionerInfo(configFile),
		Host:        host,
		Repository:  getRepositoryInfo(config),
		Daemon:      getDaemonInfo(config),
	}

	return env, nil
}

func showSettings(env EnvInfo, file *os.File) error {
	encoder := toml.NewEncoder(file)

	err := encoder.Encode(env)
	if err != nil {
		return err
	}

	return nil
}

func handleSettings(file *os.File, metadata map[string]interface{}) error {
	if file == nil {
		return errors.New("Invalid output file specified")
	}

	configFile, ok := metadata["configFile"].(string)
	if !ok {
		return errors.New("cannot determine config file")
	}

	config, ok := metadata["installerConfig"].(installerConfig)
	if !ok {
		return errors.New("cannot determine installer config")
	}

	env, err := getEnvInfo(configFile, config)
	if err != nil {
		return err
	}

	return showSettings(env, file)
}

var envCommand = cli.Command{
	Name:  "env",
	Usage: "display settings",
	Action: func(context *cli.Context) error {
		return handleSettings(defaultOutputFile, context.App.Metadata)
	},
}
