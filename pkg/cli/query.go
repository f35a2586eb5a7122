package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const queryLimitDefault = 20

var (
	queryLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits number of results returned",
		Value: queryLimitDefault,
	}

	requestIDFlag = &cli.StringFlag{
		Name:  "id",
		Usage: "Scoring request ID (returns a single decision)",
	}

	queryCmd = &cli.Command{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "Query stored decisions and audit history",
		Subcommands: []*cli.Command{
			{
				Name:    "scores",
				Usage:   "List recent decisions, or one decision by request ID",
				Aliases: []string{"s"},
				Action:  cmdQueryScores,
				Flags: []cli.Flag{
					queryLimitFlag,
					requestIDFlag,
				},
			},
			{
				Name:   "stats",
				Usage:  "Aggregate statistics over stored decisions",
				Action: cmdQueryStats,
			},
			{
				Name:    "audit",
				Usage:   "List audit log entries, newest first",
				Aliases: []string{"a"},
				Action:  cmdQueryAudit,
				Flags: []cli.Flag{
					queryLimitFlag,
				},
			},
			{
				Name:   "accuracy",
				Usage:  "Observed default rates per recommendation, from recorded feedback",
				Action: cmdQueryAccuracy,
			},
		},
	}
)

func cmdQueryScores(c *cli.Context) error {
	cfg := getConfig(c)

	if id := c.String(requestIDFlag.Name); id != "" {
		row, err := cfg.Store.GetScoreByRequestID(c.Context, id)
		if err != nil {
			return fmt.Errorf("querying score %s: %w", id, err)
		}
		return encode(row)
	}

	list, err := cfg.Store.GetRecentScores(c.Context, c.Int(queryLimitFlag.Name))
	if err != nil {
		return fmt.Errorf("querying scores: %w", err)
	}
	return encode(list)
}

func cmdQueryStats(c *cli.Context) error {
	cfg := getConfig(c)

	stats, err := cfg.Store.GetScoreStats(c.Context)
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}
	return encode(stats)
}

func cmdQueryAudit(c *cli.Context) error {
	cfg := getConfig(c)

	list, err := cfg.Store.ListAudit(c.Context, c.Int(queryLimitFlag.Name))
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}
	return encode(list)
}

func cmdQueryAccuracy(c *cli.Context) error {
	cfg := getConfig(c)

	report, err := cfg.Store.FeedbackAccuracy(c.Context)
	if err != nil {
		return fmt.Errorf("querying feedback accuracy: %w", err)
	}
	return encode(report)
}
