package cli

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	urfave "github.com/urfave/cli/v2"

	"github.com/leaseth/leaseth/pkg/config"
	"github.com/leaseth/leaseth/pkg/engine"
)

func TestNewApp(t *testing.T) {
	app := newApp()

	assert.Equal(t, "leaseth", app.Name)

	for _, name := range []string{"score", "import", "thresholds", "query", "serve", "auth", "reset"} {
		assert.NotNil(t, app.Command(name), "command %s not registered", name)
	}

	flagNames := make(map[string]bool)
	for _, f := range app.Flags {
		for _, n := range f.Names() {
			flagNames[n] = true
		}
	}
	for _, n := range []string{"debug", "config", "db", "format"} {
		assert.True(t, flagNames[n], "global flag %s not registered", n)
	}
}

func overrideCtx(t *testing.T, args ...string) *urfave.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Float64(approveFlag.Name, 0, "")
	set.Float64(manualFlag.Name, 0, "")
	set.Float64(rejectFlag.Name, 0, "")
	require.NoError(t, set.Parse(args))
	return urfave.NewContext(nil, set, nil)
}

func TestThresholdOverrides(t *testing.T) {
	base := engine.DefaultThresholds

	assert.Nil(t, thresholdOverrides(overrideCtx(t), base))

	opts := thresholdOverrides(overrideCtx(t, "--approve", "0.30"), base)
	require.NotNil(t, opts)
	require.NotNil(t, opts.Thresholds)
	assert.Equal(t, 0.30, opts.Thresholds.Approve)
	assert.Equal(t, base.Manual, opts.Thresholds.Manual)
	assert.Equal(t, base.Reject, opts.Thresholds.Reject)

	opts = thresholdOverrides(overrideCtx(t, "--approve", "0.20", "--manual", "0.50", "--reject", "0.65"), base)
	require.NotNil(t, opts)
	assert.Equal(t, engine.ThresholdSet{Approve: 0.20, Manual: 0.50, Reject: 0.65}, *opts.Thresholds)
}

func TestMapHeader(t *testing.T) {
	cols := mapHeader([]string{"Credit_Score", " monthly_income ", "applicant_name", "monthly_rent"})

	assert.Equal(t, map[string]int{
		"credit_score":   0,
		"monthly_income": 1,
		"monthly_rent":   3,
	}, cols)

	assert.Empty(t, mapHeader([]string{"id", "name", "email"}))
}

func TestRowToRecord(t *testing.T) {
	cols := mapHeader([]string{
		"credit_score", "monthly_income", "monthly_rent",
		"previous_evictions", "employment_verified", "city", "property_type",
	})

	rec, err := rowToRecord(cols, []string{"712", "5400.50", "1600", "", "true", "Austin", "apartment"})
	require.NoError(t, err)

	require.NotNil(t, rec.CreditScore)
	assert.Equal(t, 712.0, *rec.CreditScore)
	require.NotNil(t, rec.MonthlyIncome)
	assert.Equal(t, 5400.50, *rec.MonthlyIncome)
	require.NotNil(t, rec.EmploymentVerified)
	assert.Equal(t, 1.0, *rec.EmploymentVerified)
	assert.Nil(t, rec.PreviousEvictions, "empty cell stays absent")
	assert.Equal(t, "Austin", rec.City)
	assert.Equal(t, "apartment", rec.PropertyType)

	_, err = rowToRecord(cols, []string{"seven hundred", "5400", "1600", "0", "1", "Austin", "apartment"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit_score")

	// short rows leave trailing columns absent
	rec, err = rowToRecord(cols, []string{"690"})
	require.NoError(t, err)
	require.NotNil(t, rec.CreditScore)
	assert.Nil(t, rec.MonthlyIncome)
}

func TestParseNumericCell(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "712", want: 712},
		{in: "0.35", want: 0.35},
		{in: "-2.5", want: -2.5},
		{in: "true", want: 1},
		{in: "FALSE", want: 0},
		{in: "yes", want: 1},
		{in: "No", want: 0},
		{in: "maybe", wantErr: true},
		{in: "12,50", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseNumericCell(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestEngineConfigMapping(t *testing.T) {
	conf := config.Default()
	ec := engineConfig(conf)

	assert.Equal(t,
		filepath.Join("models", "model_v1_2025_11.json"),
		ec.Registry.EvictionAware.ArtifactPath)
	assert.Equal(t,
		filepath.Join("models", "features_v3_2025_11.json"),
		ec.Registry.FinancialOnly.FeaturesPath)

	assert.Equal(t, engine.ThresholdSet{Approve: 0.45, Manual: 0.60, Reject: 0.75}, ec.Thresholds)

	assert.Equal(t, 600.0, ec.Policy.PoorCreditCutoff)
	assert.Equal(t, 0.85, ec.Policy.SecondaryRejectCutoff)
	assert.Equal(t, 0.90, ec.Policy.ZeroEvictionRejectCutoff)

	assert.Equal(t, 670.0, ec.Engineer.SubprimeCreditCutoff)
	assert.Equal(t, 3.0, ec.Engineer.IncomeStabilityMultiple)
	assert.Equal(t, 0.4, ec.Engineer.RentBurdenCutoff)
}

func TestModelPath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "m.json"), modelPath("models", "m.json"))

	abs := filepath.Join(string(filepath.Separator), "opt", "bundles", "m.json")
	assert.Equal(t, abs, modelPath("models", abs))
}
