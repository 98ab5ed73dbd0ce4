package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateValues []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run one check cycle with fixed metric values and send a real notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(simulateValues) == 0 {
			return errors.New("at least one --set metric=value is required")
		}

		values := make(map[string]decimal.Decimal, len(simulateValues))
		for _, pair := range simulateValues {
			name, raw, found := strings.Cut(pair, "=")
			if !found {
				return fmt.Errorf("invalid --set value %q, expected metric=value", pair)
			}
			value, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("invalid value for metric %s: %w", name, err)
			}
			if value.Sign() <= 0 {
				return fmt.Errorf("metric %s must be greater than zero", name)
			}
			values[name] = value
		}

		return getApp().SimulateAlert(cmd.Context(), values)
	},
}

func init() {
	simulateCmd.Flags().StringSliceVar(&simulateValues, "set", nil, "Metric value as metric=value (repeatable)")
}
