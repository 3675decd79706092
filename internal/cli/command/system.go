// Package command provides CLI command definitions for keymesh-cli.
package command

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/connection"
	"github.com/yndnr/keymesh-go/internal/cli/output"
)

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show issuance and device counters",
		Action: statsShow,
	}
}

func statsShow(c *cli.Context) error {
	client := Client(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/stats")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Codes map[string]struct {
			Issued   int `json:"issued"`
			Redeemed int `json:"redeemed"`
		} `json:"codes"`
		Devices struct {
			Active int `json:"active"`
			Total  int `json:"total"`
		} `json:"devices"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if c.String("output") == "json" {
		return Printer(c).Format(c.App.Writer, result)
	}

	table := output.NewTable("KIND", "ISSUED", "REDEEMED")
	for kind, stats := range result.Codes {
		table.AddRow(kind, strconv.Itoa(stats.Issued), strconv.Itoa(stats.Redeemed))
	}
	if err := table.Render(c.App.Writer); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "\ndevices: %d active / %d total\n",
		result.Devices.Active, result.Devices.Total)
	return nil
}

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Fetch a sealed storage backup from the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"f"},
				Usage:    "Output file for the sealed backup",
				Required: true,
			},
		},
		Action: backupFetch,
	}
}

func backupFetch(c *cli.Context) error {
	client := Client(c)

	// Backups of large stores take a while to stream.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	resp, err := client.Post(ctx, "/admin/v1/backups", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	data, err := connection.ReadRaw(resp)
	if err != nil {
		return err
	}

	outPath := c.String("out")
	if err := os.WriteFile(outPath, data, 0600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "wrote %d bytes to %s\n", len(data), outPath)
	return nil
}
