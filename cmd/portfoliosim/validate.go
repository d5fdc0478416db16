package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/portfoliosim/internal/data/cold"
	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/signals"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and input files without simulating",
		RunE:  runValidate,
	}
	cmd.Flags().String("data", "", "Feature CSV to validate")
	cmd.Flags().String("weights", "", "Target weight CSV to validate against --data")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration OK (risk mode %s, output %s)\n", cfg.RiskMode(), cfg.Output.Dir)

	dataPath, _ := cmd.Flags().GetString("data")
	weightsPath, _ := cmd.Flags().GetString("weights")
	if dataPath == "" {
		if weightsPath != "" {
			return &models.ConfigError{Field: "weights", Reason: "--weights needs --data to validate against"}
		}
		return nil
	}

	reader := cold.NewCSVReader()
	ds, err := reader.LoadFeatures(dataPath)
	if err != nil {
		return err
	}
	fmt.Printf("Features OK: %d rows, %d symbols, %d dates\n", len(ds.Rows), len(ds.Symbols()), distinctDates(ds.Rows))

	if weightsPath == "" {
		return nil
	}
	weights, err := reader.LoadWeights(weightsPath)
	if err != nil {
		return err
	}
	if _, err := signals.NewPrecomputed(weights).TargetWeights(nil); err != nil {
		return err
	}

	priced := make(map[models.Key]bool, len(ds.Rows))
	for _, r := range ds.Rows {
		priced[models.KeyOf(r.Date, r.Symbol)] = true
	}
	for _, w := range weights {
		if !priced[models.KeyOf(w.Date, w.Symbol)] {
			return &models.DataQualityError{Date: w.Date, Symbol: w.Symbol, Reason: "target weight has no matching price bar"}
		}
	}
	log.Debug().Int("weights", len(weights)).Msg("Weights joined onto bars")
	fmt.Printf("Weights OK: %d rows\n", len(weights))
	return nil
}
