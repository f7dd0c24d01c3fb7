package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/pkg/budget"
	"github.com/guildgate/guildgate/pkg/models"
)

func newBudgetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect and set daily guild budgets",
	}

	var guildID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget consumption vs the effective policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			gov := budget.New(st, cfg.Governance)
			pol := gov.EffectivePolicy(guildID)
			used, err := gov.Consumption(guildID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UNIT\tLIMIT TOKENS\tUSED TOKENS\tLIMIT USD\tUSED USD\tWARN")
			warn := string(used.LastWarnLevel)
			if warn == "" {
				warn = "-"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t%s\n",
				pol.Unit, pol.DailyTokens, used.TokensDayTotal, pol.DailyUSD, used.CostDayUSD, warn)
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&guildID, "guild", "", "guild ID")
	_ = statusCmd.MarkFlagRequired("guild")

	var (
		setGuild  string
		unit      string
		tokens    int64
		usd       float64
		warn1     float64
		warn2     float64
		resetTime string
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set per-guild budget overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			err = st.Update(setGuild, func(rec *models.GuildRecord) error {
				if rec.Governance.Budget == nil {
					rec.Governance.Budget = &models.BudgetOverride{}
				}
				o := rec.Governance.Budget
				if cmd.Flags().Changed("unit") {
					if unit != models.UnitTokens && unit != models.UnitUSD {
						return fmt.Errorf("unit must be %q or %q", models.UnitTokens, models.UnitUSD)
					}
					o.Unit = &unit
				}
				if cmd.Flags().Changed("daily-tokens") {
					o.DailyTokens = &tokens
				}
				if cmd.Flags().Changed("daily-usd") {
					o.DailyUSD = &usd
				}
				if cmd.Flags().Changed("warn1") || cmd.Flags().Changed("warn2") {
					t := models.Thresholds{Warn1: warn1, Warn2: warn2}
					if o.Thresholds != nil {
						if !cmd.Flags().Changed("warn1") {
							t.Warn1 = o.Thresholds.Warn1
						}
						if !cmd.Flags().Changed("warn2") {
							t.Warn2 = o.Thresholds.Warn2
						}
					}
					o.Thresholds = &t
				}
				if cmd.Flags().Changed("reset-time") {
					o.Reset = &models.ResetPolicy{Period: "daily", TimeUTC: resetTime}
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println("Budget overrides updated.")
			return nil
		},
	}
	setCmd.Flags().StringVar(&setGuild, "guild", "", "guild ID")
	_ = setCmd.MarkFlagRequired("guild")
	setCmd.Flags().StringVar(&unit, "unit", "", "enforced unit: tokens or usd")
	setCmd.Flags().Int64Var(&tokens, "daily-tokens", 0, "daily token cap (0 disables)")
	setCmd.Flags().Float64Var(&usd, "daily-usd", 0, "daily USD cap (0 disables)")
	setCmd.Flags().Float64Var(&warn1, "warn1", 0.8, "first warning threshold ratio")
	setCmd.Flags().Float64Var(&warn2, "warn2", 0.95, "second warning threshold ratio")
	setCmd.Flags().StringVar(&resetTime, "reset-time", "00:00", "daily reset time, HH:MM UTC")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "guildgate.yaml", "path to config file")
	cmd.AddCommand(statusCmd, setCmd)
	return cmd
}
