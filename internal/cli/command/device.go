// Package command provides CLI command definitions for keymesh-cli.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/connection"
	"github.com/yndnr/keymesh-go/internal/cli/output"
)

// DeviceCommand returns the device subcommand group.
func DeviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "device",
		Usage: "Activate and verify device licenses",
		Subcommands: []*cli.Command{
			{
				Name:      "activate",
				Usage:     "Redeem an activation code for a device",
				ArgsUsage: "DEVICE_ID CODE",
				Action:    deviceActivate,
			},
			{
				Name:      "verify",
				Usage:     "Check whether a device holds a valid license",
				ArgsUsage: "DEVICE_ID",
				Action:    deviceVerify,
			},
		},
	}
}

func deviceActivate(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: device activate DEVICE_ID CODE")
	}
	deviceID := c.Args().Get(0)
	code := c.Args().Get(1)

	client := Client(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/api/v1/activate", map[string]string{
		"device_id":       deviceID,
		"activation_code": code,
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		LicenseKind  string    `json:"license_kind"`
		DurationDays int       `json:"duration_days"`
		ActivatedAt  time.Time `json:"activated_at"`
		ExpiresAt    time.Time `json:"expires_at"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if c.String("output") == "json" {
		return Printer(c).Format(c.App.Writer, result)
	}

	table := output.NewTable("FIELD", "VALUE")
	table.AddRow("device_id", deviceID)
	table.AddRow("license_kind", result.LicenseKind)
	table.AddRow("duration_days", strconv.Itoa(result.DurationDays))
	table.AddRow("expires_at", result.ExpiresAt.Format("2006-01-02 15:04"))
	return table.Render(c.App.Writer)
}

func deviceVerify(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: device verify DEVICE_ID")
	}
	deviceID := c.Args().Get(0)

	client := Client(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/api/v1/verify", map[string]string{
		"device_id": deviceID,
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Valid         bool       `json:"valid"`
		LicenseKind   string     `json:"license_kind"`
		ExpiresAt     *time.Time `json:"expires_at"`
		DaysRemaining int        `json:"days_remaining"`
		IsTrial       bool       `json:"is_trial"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if c.String("output") == "json" {
		return Printer(c).Format(c.App.Writer, result)
	}

	if !result.Valid {
		fmt.Fprintf(c.App.Writer, "device %s: no valid license\n", deviceID)
		return nil
	}

	table := output.NewTable("FIELD", "VALUE")
	table.AddRow("device_id", deviceID)
	table.AddRow("license_kind", result.LicenseKind)
	table.AddRow("days_remaining", strconv.Itoa(result.DaysRemaining))
	if result.ExpiresAt != nil {
		table.AddRow("expires_at", result.ExpiresAt.Format("2006-01-02 15:04"))
	}
	table.AddRow("is_trial", strconv.FormatBool(result.IsTrial))
	return table.Render(c.App.Writer)
}
