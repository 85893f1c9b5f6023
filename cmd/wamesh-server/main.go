package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/wamesh-go/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "wamesh-server",
		Usage:   "Multi-tenant messaging session orchestrator",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"WAMESH_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: ".env files loaded before the environment (missing files are skipped)",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			registryCommand(),
			backupCommand(),
			versionCommand(),
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Start the server and restore registered sessions",
		Action: runServer,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			info := buildinfo.Get()
			fmt.Fprintf(c.App.Writer, "wamesh-server %s (commit: %s, built: %s, %s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion)
			return nil
		},
	}
}
