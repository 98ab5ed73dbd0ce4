package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/easygo-dev/token/internal/storage"
)

// Alerts prints recently recorded alerts.
func (a *App) Alerts(ctx context.Context, opts AlertsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tSymbol\tChanges")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			alert.FiredAt.UTC().Format(time.RFC3339),
			alert.Symbol,
			summariseChanges(alert),
		)
	}

	return writer.Flush()
}

func summariseChanges(alert storage.AlertRecord) string {
	parts := make([]string, 0, len(alert.Changes))
	for _, change := range alert.Changes {
		marker := ""
		if change.Exceeded {
			marker = "*"
		}
		parts = append(parts, fmt.Sprintf("%s%s=%s (%s%%)",
			marker, change.Metric, change.Value.String(), change.PctChange.StringFixed(2)))
	}
	return strings.Join(parts, "  ")
}
