package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/leaseth/leaseth/pkg/data"
	"github.com/leaseth/leaseth/pkg/engine"
)

var (
	scoreFileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Path to the applicant JSON file (use - for stdin)",
		Value:   "-",
	}

	approveFlag = &cli.Float64Flag{
		Name:  "approve",
		Usage: "Override the auto-approve cutoff for this request",
	}

	manualFlag = &cli.Float64Flag{
		Name:  "manual",
		Usage: "Override the manual-review cutoff for this request",
	}

	rejectFlag = &cli.Float64Flag{
		Name:  "reject",
		Usage: "Override the reject cutoff for this request",
	}

	scoreCmd = &cli.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Score a single applicant and print the decision",
		UsageText: `leaseth score --file applicant.json                   # score from a file
   cat applicant.json | leaseth score                   # score from stdin
   leaseth score -f applicant.json --reject 0.70        # tighten the reject cutoff`,
		HideHelpCommand: true,
		Action:          cmdScore,
		Flags: []cli.Flag{
			scoreFileFlag,
			approveFlag,
			manualFlag,
			rejectFlag,
		},
	}
)

func cmdScore(c *cli.Context) error {
	cfg := getConfig(c)

	eng, err := cfg.loadEngine()
	if err != nil {
		return err
	}

	rec, err := readApplicant(c.String(scoreFileFlag.Name))
	if err != nil {
		return err
	}

	res, err := eng.ScoreApplicant(*rec, thresholdOverrides(c, eng.Thresholds()))
	if err != nil {
		return fmt.Errorf("scoring applicant: %w", err)
	}

	persistDecision(c, cfg, *rec, res)

	return encode(res)
}

// thresholdOverrides merges per-request cutoff flags onto the base set.
// Returns nil when no flag is set so the engine keeps its defaults.
func thresholdOverrides(c *cli.Context, base engine.ThresholdSet) *engine.ScoreOptions {
	if !c.IsSet(approveFlag.Name) && !c.IsSet(manualFlag.Name) && !c.IsSet(rejectFlag.Name) {
		return nil
	}

	t := base
	if c.IsSet(approveFlag.Name) {
		t.Approve = c.Float64(approveFlag.Name)
	}
	if c.IsSet(manualFlag.Name) {
		t.Manual = c.Float64(manualFlag.Name)
	}
	if c.IsSet(rejectFlag.Name) {
		t.Reject = c.Float64(rejectFlag.Name)
	}
	return &engine.ScoreOptions{Thresholds: &t}
}

func readApplicant(path string) (*engine.ApplicantRecord, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading applicant payload: %w", err)
	}

	var rec engine.ApplicantRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parsing applicant payload: %w", err)
	}
	return &rec, nil
}

// persistDecision stores the application and decision, then records the
// audit entry. Persistence failures are reported but never fail the
// scoring command.
func persistDecision(c *cli.Context, cfg *appConfig, rec engine.ApplicantRecord, res *engine.Result) {
	if err := cfg.Store.SaveDecision(c.Context, rec, res); err != nil {
		slog.Warn("decision not persisted", "request_id", res.RequestID, "error", err)
		return
	}
	if err := cfg.Store.InsertAudit(c.Context, data.AuditActionScore, res.RequestID); err != nil {
		slog.Warn("audit entry not recorded", "request_id", res.RequestID, "error", err)
	}
}
