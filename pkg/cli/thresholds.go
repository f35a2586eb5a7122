package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/leaseth/leaseth/pkg/engine"
)

var (
	fpCostFlag = &cli.Float64Flag{
		Name:     "fp-cost",
		Usage:    "Cost of rejecting a good tenant (lost rent, re-listing)",
		Required: true,
	}

	fnCostFlag = &cli.Float64Flag{
		Name:     "fn-cost",
		Usage:    "Cost of approving a tenant who defaults",
		Required: true,
	}

	vacancyFlag = &cli.Float64Flag{
		Name:  "vacancy",
		Usage: "Current vacancy rate as a fraction (e.g. 0.08)",
	}

	volumeFlag = &cli.StringFlag{
		Name:  "volume",
		Usage: "Application volume [low, normal, high]",
		Value: string(engine.VolumeNormal),
	}

	thresholdsCmd = &cli.Command{
		Name:    "thresholds",
		Aliases: []string{"t"},
		Usage:   "Compute decision cutoffs for current market conditions",
		UsageText: `leaseth thresholds --fp-cost 5000 --fn-cost 3000 --vacancy 0.12 --volume low
   leaseth thresholds --fp-cost 1000 --fn-cost 3000 --vacancy 0.02 --volume high`,
		HideHelpCommand: true,
		Action:          cmdThresholds,
		Flags: []cli.Flag{
			fpCostFlag,
			fnCostFlag,
			vacancyFlag,
			volumeFlag,
		},
	}
)

func cmdThresholds(c *cli.Context) error {
	cfg := getConfig(c)

	eng, err := cfg.loadEngine()
	if err != nil {
		return err
	}

	res, err := eng.ComputeThresholds(engine.DynamicInput{
		FPCost:      c.Float64(fpCostFlag.Name),
		FNCost:      c.Float64(fnCostFlag.Name),
		VacancyRate: c.Float64(vacancyFlag.Name),
		Volume:      engine.Volume(c.String(volumeFlag.Name)),
	})
	if err != nil {
		return fmt.Errorf("computing thresholds: %w", err)
	}

	return encode(res)
}
