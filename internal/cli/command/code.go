// Package command provides CLI command definitions for keymesh-cli.
package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/connection"
	"github.com/yndnr/keymesh-go/internal/cli/output"
)

// CodeCommand returns the code subcommand group.
func CodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "code",
		Usage: "Manage activation codes",
		Subcommands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Issue a batch of activation codes",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kind",
						Aliases:  []string{"k"},
						Usage:    "License kind (TRIAL_1D, WEEK_7D, MONTH_1M, MONTH_3M, LIFETIME)",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Value:   1,
						Usage:   "Number of codes to generate (max 500)",
					},
					&cli.IntFlag{
						Name:  "max-uses",
						Usage: "Redemption quota per code (default 1)",
					},
					&cli.StringFlag{
						Name:  "issued-by",
						Usage: "Issuer tag for the audit trail",
					},
				},
				Action: codeIssue,
			},
		},
	}
}

func codeIssue(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/admin/v1/codes", map[string]any{
		"license_kind": c.String("kind"),
		"count":        c.Int("count"),
		"max_uses":     c.Int("max-uses"),
		"issued_by":    c.String("issued-by"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		BatchID      string `json:"batch_id"`
		LicenseKind  string `json:"license_kind"`
		DurationDays int    `json:"duration_days"`
		Count        int    `json:"count"`
		Codes        []struct {
			Code      string    `json:"code"`
			MaxUses   int       `json:"max_uses"`
			ExpiresAt time.Time `json:"expires_at"`
		} `json:"codes"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if c.String("output") == "json" {
		return Printer(c).Format(c.App.Writer, result)
	}

	fmt.Fprintf(c.App.Writer, "Batch %s: %d %s code(s), %d day(s) each\n",
		result.BatchID, result.Count, result.LicenseKind, result.DurationDays)

	table := output.NewTable("CODE", "MAX_USES", "REDEEM_BY")
	for _, code := range result.Codes {
		table.AddRow(code.Code,
			strconv.Itoa(code.MaxUses),
			code.ExpiresAt.Format("2006-01-02 15:04"))
	}
	return table.Render(c.App.Writer)
}
