// Package command provides CLI command definitions for keymesh-cli.
//
// It uses urfave/cli/v2 for command parsing.
package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/connection"
	"github.com/yndnr/keymesh-go/internal/cli/output"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "keymesh-cli",
		Usage:   "KeyMesh command-line management tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			CodeCommand(),
			DeviceCommand(),
			StatsCommand(),
			BackupCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "KeyMesh server address (e.g., localhost:8087)",
			EnvVars: []string{"KEYMESH_SERVER"},
			Value:   "localhost:8087",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json",
			Value:   "table",
		},
	}
}

// Client builds the HTTP client from global flags.
func Client(c *cli.Context) *connection.HTTPClient {
	return connection.NewHTTPClient(c.String("server"))
}

// Printer builds the output formatter from global flags.
func Printer(c *cli.Context) output.Formatter {
	return output.NewFormatter(output.Format(c.String("output")))
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
