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
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

// name holds the name of this program
const (
	name    = "docker-provision"
	project = "Docker Engine"
)

// version is the provisioner version. It is specified at compilation time
// (see Makefile).
var version = ""

// commit is the git commit the provisioner is compiled from. It is specified
// at compilation time (see Makefile)
var commit = ""

const usage = project + ` provisioning tool

docker-provision is a command line program that provisions ` + project + `
on apt-based systems from the upstream package repository: it removes
conflicting container-runtime packages, registers the vendor repository,
installs the engine packages, reconciles the daemon configuration file and
performs the post-install steps (docker group, service enablement, user
membership, verification workload).`

const notes = `
NOTES:

- The "install" and "check" commands must be run as root.

`

var provLog = logrus.New()

// exit is a variable to allow tests to verify exit behaviour.
var exit = os.Exit

func beforeSubcommands(context *cli.Context) error {
	if userWantsUsage(context) {
		// No setup required if the user just wants to see the
		// usage statement.
		return nil
	}

	if context.GlobalBool("debug") {
		provLog.Level = logrus.DebugLevel
	}
	if path := context.GlobalString("log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0640)
		if err != nil {
			return err
		}
		provLog.Out = f
	}

	switch context.GlobalString("log-format") {
	case "text":
		// retain logrus's default.
	case "json":
		provLog.Formatter = new(logrus.JSONFormatter)
	default:
		return fmt.Errorf("unknown log-format %q", context.GlobalString("log-format"))
	}

	configFile, installerConf, err := loadConfiguration(context.GlobalString("config"))
	if err != nil {
		fatal(err)
	}

	if err := handleGlobalLog(installerConf.globalLogPath); err != nil {
		fatal(err)
	}

	provLog.Infof("%v (version %v, commit %v) called as: %v", name, version, commit, context.Args())

	// make the data accessible to the sub-commands.
	context.App.Metadata = map[string]interface{}{
		"installerConfig": installerConf,
		"configFile":      configFile,
	}

	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = name
	app.Usage = usage

	cli.AppHelpTemplate = fmt.Sprintf(`%s%s`, cli.AppHelpTemplate, notes)

	v := make([]string, 0, 2)
	if version != "" {
		v = append(v, name+"  : "+version)
	}
	if commit != "" {
		v = append(v, "   commit   : "+commit)
	}
	app.Version = strings.Join(v, "\n")

	// Override the default function to display version details to
	// ensure the "--version" option and "version" command are identical.
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Println(c.App.Version)
	}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: name + " config file path",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug output for logging",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "set the log file path where internal debug information is written",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "set the format used by logs ('text' (default), or 'json')",
		},
	}

	app.Commands = []cli.Command{
		checkCommand,
		envCommand,
		installCommand,
	}

	app.Before = beforeSubcommands
	// If the command returns an error, cli takes upon itself to print
	// the error on cli.ErrWriter and exit.
	// Use our own writer here to ensure the log gets sent to the right
	// location.
	cli.ErrWriter = &fatalWriter{cli.ErrWriter}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// userWantsUsage determines if the user only wishes to see the usage
// statement.
func userWantsUsage(context *cli.Context) bool {
	if context.NArg() == 0 {
		return true
	}

	if context.NArg() == 1 && (context.Args()[0] == "help" || context.Args()[0] == "version") {
		return true
	}

	if context.NArg() >= 2 && (context.Args()[1] == "-h" || context.Args()[1] == "--help") {
		return true
	}

	return false
}

// fatal prints the error's details and exits the program.
func fatal(err error) {
	provLog.Error(err)
	fmt.Fprintln(os.Stderr, err)
	exit(1)
}

type fatalWriter struct {
	cliErrWriter io.Writer
}

func (f *fatalWriter) Write(p []byte) (n int, err error) {
	provLog.Error(string(p))
	return f.cliErrWriter.Write(p)
}
