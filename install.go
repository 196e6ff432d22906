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
	"fmt"
	"path/filepath"

	"github.com/urfave/cli"
)

// installOptions is the immutable record of the flags controlling an
// install run.
type installOptions struct {
	// applyDefaults requests the default daemon settings block.
	applyDefaults bool

	// dataRoot is the custom daemon data directory (absolute, optional).
	dataRoot string

	// user is the account added to the docker group.
	user string

	// skipVerify disables the verification workload.
	skipVerify bool
}

// installState carries the outcome of earlier steps to later ones.
type installState struct {
	config installerConfig
	opts   installOptions
	mgr    systemdManager

	// configChanged is set by the daemon configuration step and drives
	// the restart-vs-start decision.
	configChanged bool
}

// installStep is one named step of the provisioning sequence. Steps run
// in order and the first failure aborts the run.
type installStep struct {
	name string
	run  func(ctx context.Context, st *installState) error
}

var installSteps = []installStep{
	{
		name: "remove conflicting packages",
		run: func(ctx context.Context, st *installState) error {
			return removeConflictingPackages(st.config.removePackages)
		},
	},
	{
		name: "register package repository",
		run: func(ctx context.Context, st *installState) error {
			_, err := registerRepository(st.config)
			return err
		},
	},
	{
		name: "update package index",
		run: func(ctx context.Context, st *installState) error {
			return updatePackageIndex()
		},
	},
	{
		name: "install packages",
		run: func(ctx context.Context, st *installState) error {
			return installPackages(st.config.installPackages)
		},
	},
	{
		name: "reconcile daemon configuration",
		run: func(ctx context.Context, st *installState) error {
			changed, err := reconcileDaemonConfig(st.config.daemonConfigPath, daemonConfigUpdate{
				applyDefaults: st.opts.applyDefaults,
				dataRoot:      st.opts.dataRoot,
				logMaxSize:    st.config.logMaxSize,
				logMaxFile:    st.config.logMaxFile,
			})
			if err != nil {
				return err
			}

			st.configChanged = changed

			return nil
		},
	},
	{
		name: "create docker group",
		run: func(ctx context.Context, st *installState) error {
			return ensureDockerGroup()
		},
	},
	{
		name: "add user to docker group",
		run: func(ctx context.Context, st *installState) error {
			return addUserToDockerGroup(resolveTargetUser(st.opts.user))
		},
	},
	{
		name: "enable services",
		run: func(ctx context.Context, st *installState) error {
			return enableServices(ctx, st.mgr)
		},
	},
	{
		name: "start docker",
		run: func(ctx context.Context, st *installState) error {
			return startOrRestartDocker(ctx, st.mgr, st.configChanged)
		},
	},
	{
		name: "verify installation",
		run: func(ctx context.Context, st *installState) error {
			if st.opts.skipVerify {
				provLog.Info("Skipping verification workload")
				return nil
			}

			return verifyInstallation(st.config.verifyImage)
		},
	},
}

// validateInstallOptions rejects bad input before any system mutation.
func validateInstallOptions(opts installOptions) error {
	if opts.dataRoot != "" && !filepath.IsAbs(opts.dataRoot) {
		return fmt.Errorf("data-root must be an absolute path, got %q", opts.dataRoot)
	}

	return nil
}

// runInstall executes the full provisioning sequence. Steps run strictly
// in order; any failing step aborts the run with no rollback of the steps
// already applied.
func runInstall(ctx context.Context, config installerConfig, opts installOptions) error {
	if err := validateInstallOptions(opts); err != nil {
		return err
	}

	if err := hostCanBeProvisioned(); err != nil {
		return err
	}

	mgr, err := newSystemdManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	st := &installState{
		config: config,
		opts:   opts,
		mgr:    mgr,
	}

	for i, step := range installSteps {
		provLog.Infof("Step %d/%d: %s", i+1, len(installSteps), step.name)

		if err := step.run(ctx, st); err != nil {
			return fmt.Errorf("%s: %v", step.name, err)
		}
	}

	provLog.Info("")
	provLog.Info(project + " provisioned successfully")

	return nil
}

var installCommand = cli.Command{
	Name:  "install",
	Usage: "provisions " + project + " on this system",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "default-daemon-config",
			Usage: "merge the default daemon settings (log rotation, buildkit) into the daemon configuration",
		},
		cli.StringFlag{
			Name:  "data-root",
			Usage: "set a custom daemon data directory (absolute path)",
		},
		cli.StringFlag{
			Name:  "user",
			Usage: "account to add to the docker group (default: the invoking sudo user)",
		},
		cli.BoolFlag{
			Name:  "skip-verify",
			Usage: "skip the verification workload after installation",
		},
	},
	Action: func(context *cli.Context) error {
		config, ok := context.App.Metadata["installerConfig"].(installerConfig)
		if !ok {
			return errors.New("cannot determine installer config")
		}

		opts := installOptions{
			applyDefaults: context.Bool("default-daemon-config"),
			dataRoot:      context.String("data-root"),
			user:          context.String("user"),
			skipVerify:    context.Bool("skip-verify"),
		}

		return runInstall(contextBackground(), config, opts)
	},
}

// contextBackground is a variable to allow tests to inject a cancellable
// context.
var contextBackground = context.Background
