package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/leaseth/leaseth/pkg/data"
	"github.com/leaseth/leaseth/pkg/engine"
)

const importWorkersDefault = 4

var (
	importFileFlag = &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Path to the applicant CSV file (header row required)",
		Required: true,
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of concurrent scoring workers",
		Value: importWorkersDefault,
	}

	importCmd = &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Score a CSV of applicants and store every decision",
		UsageText: `leaseth import --file applicants.csv               # score with 4 workers
   leaseth import -f applicants.csv --workers 8       # raise concurrency`,
		HideHelpCommand: true,
		Action:          cmdImport,
		Flags: []cli.Flag{
			importFileFlag,
			workersFlag,
		},
	}
)

// ImportSummary reports one batch run.
type ImportSummary struct {
	File       string         `json:"file"`
	Scored     int            `json:"scored"`
	Failed     int            `json:"failed"`
	Duration   string         `json:"duration"`
	Categories map[string]int `json:"categories"`
}

func cmdImport(c *cli.Context) error {
	start := time.Now()
	cfg := getConfig(c)

	eng, err := cfg.loadEngine()
	if err != nil {
		return err
	}

	path := c.String(importFileFlag.Name)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}
	cols := mapHeader(header)
	if len(cols) == 0 {
		return fmt.Errorf("no known applicant columns in header: %s", strings.Join(header, ","))
	}

	workers := c.Int(workersFlag.Name)
	if workers < 1 {
		workers = importWorkersDefault
	}

	// One encoder across the batch keeps categorical codes consistent for
	// every row.
	enc := engine.NewEncoder()

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(workers)

	var mu sync.Mutex
	sum := &ImportSummary{
		File:       filepath.Base(path),
		Categories: make(map[string]int),
	}
	fail := func(line int, stage string, err error) {
		slog.Warn("skipping row", "line", line, "stage", stage, "error", err)
		mu.Lock()
		sum.Failed++
		mu.Unlock()
	}

	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			fail(line, "read", err)
			continue
		}

		line := line
		g.Go(func() error {
			rec, err := rowToRecord(cols, row)
			if err != nil {
				fail(line, "parse", err)
				return nil
			}

			res, err := eng.ScoreApplicantWith(rec, enc, nil)
			if err != nil {
				fail(line, "score", err)
				return nil
			}

			if err := cfg.Store.SaveDecision(ctx, rec, res); err != nil {
				fail(line, "store", err)
				return nil
			}

			mu.Lock()
			sum.Scored++
			sum.Categories[string(res.RiskCategory)]++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("scoring batch: %w", err)
	}
	sum.Duration = time.Since(start).String()

	detail := fmt.Sprintf("file=%s scored=%d failed=%d", sum.File, sum.Scored, sum.Failed)
	if err := cfg.Store.InsertAudit(c.Context, data.AuditActionImport, detail); err != nil {
		slog.Warn("audit entry not recorded", "error", err)
	}

	return encode(sum)
}

// mapHeader indexes the applicant columns present in the CSV header.
// Unknown columns are ignored so exports carrying extra fields still load.
func mapHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := applicantColumns[name]; ok {
			cols[name] = i
		}
	}
	return cols
}

var applicantColumns = map[string]struct{}{
	"bedrooms": {}, "bathrooms": {}, "square_feet": {}, "property_age_years": {},
	"parking_spaces": {}, "pets_allowed": {}, "furnished": {}, "monthly_rent": {},
	"security_deposit": {}, "lease_term_months": {}, "tenant_age": {},
	"monthly_income": {}, "employment_verified": {}, "income_verified": {},
	"credit_score": {}, "rental_history_years": {}, "previous_evictions": {},
	"on_time_payments": {}, "late_payments": {}, "missed_payments": {},
	"market_median_rent": {}, "days_to_rent_property": {},
	"local_unemployment_rate": {}, "inflation_rate": {},
	"country": {}, "city": {}, "property_type": {}, "employment_type": {}, "currency": {},
}

// rowToRecord builds an ApplicantRecord from one CSV row. Empty cells stay
// absent so the feature engineer imputes them; an unparseable numeric cell
// fails the whole row.
func rowToRecord(cols map[string]int, row []string) (engine.ApplicantRecord, error) {
	var rec engine.ApplicantRecord

	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	num := func(name string, dst **float64) error {
		v := cell(name)
		if v == "" {
			return nil
		}
		f, err := parseNumericCell(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		*dst = &f
		return nil
	}

	numeric := []struct {
		name string
		dst  **float64
	}{
		{"bedrooms", &rec.Bedrooms},
		{"bathrooms", &rec.Bathrooms},
		{"square_feet", &rec.SquareFeet},
		{"property_age_years", &rec.PropertyAgeYears},
		{"parking_spaces", &rec.ParkingSpaces},
		{"pets_allowed", &rec.PetsAllowed},
		{"furnished", &rec.Furnished},
		{"monthly_rent", &rec.MonthlyRent},
		{"security_deposit", &rec.SecurityDeposit},
		{"lease_term_months", &rec.LeaseTermMonths},
		{"tenant_age", &rec.TenantAge},
		{"monthly_income", &rec.MonthlyIncome},
		{"employment_verified", &rec.EmploymentVerified},
		{"income_verified", &rec.IncomeVerified},
		{"credit_score", &rec.CreditScore},
		{"rental_history_years", &rec.RentalHistoryYears},
		{"previous_evictions", &rec.PreviousEvictions},
		{"on_time_payments", &rec.OnTimePayments},
		{"late_payments", &rec.LatePayments},
		{"missed_payments", &rec.MissedPayments},
		{"market_median_rent", &rec.MarketMedianRent},
		{"days_to_rent_property", &rec.DaysToRentProperty},
		{"local_unemployment_rate", &rec.LocalUnemploymentRate},
		{"inflation_rate", &rec.InflationRate},
	}
	for _, n := range numeric {
		if err := num(n.name, n.dst); err != nil {
			return engine.ApplicantRecord{}, err
		}
	}

	rec.Country = cell("country")
	rec.City = cell("city")
	rec.PropertyType = cell("property_type")
	rec.EmploymentType = cell("employment_type")
	rec.Currency = cell("currency")

	return rec, nil
}

// parseNumericCell accepts plain numbers plus the boolean spellings CSV
// exports use for flags like employment_verified.
func parseNumericCell(v string) (float64, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, nil
	}
	if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	switch strings.ToLower(v) {
	case "yes", "y":
		return 1, nil
	case "no", "n":
		return 0, nil
	}
	return 0, fmt.Errorf("cannot parse %q as a number", v)
}
