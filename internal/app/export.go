package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/easygo-dev/token/internal/storage"
)

// Export renders recorded alert history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	if opts.MaxPoints <= 0 {
		opts.MaxPoints = a.Config.Export.MaxDataPoints
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}

	downsampled := downsampleAlerts(alerts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(alerts)).Int("exported", len(downsampled)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := a.writeAlertsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writeAlertsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAlerts(alerts []storage.AlertRecord, max int) []storage.AlertRecord {
	if max <= 0 || len(alerts) <= max {
		return alerts
	}

	result := make([]storage.AlertRecord, 0, max)
	step := float64(len(alerts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(alerts) {
			idx = len(alerts) - 1
		}
		result = append(result, alerts[idx])
	}
	return result
}

func (a *App) writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	names := a.metricNames()
	header := []string{"fired_at", "symbol"}
	for _, name := range names {
		header = append(header, name, name+"_change_pct")
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range alerts {
		record := []string{alert.FiredAt.UTC().Format(time.RFC3339), alert.Symbol}
		for _, name := range names {
			value, pct := alertMetric(alert, name)
			record = append(record, value, pct)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func alertMetric(alert storage.AlertRecord, name string) (string, string) {
	for _, change := range alert.Changes {
		if change.Metric == name {
			return change.Value.String(), change.PctChange.StringFixed(2)
		}
	}
	return "", ""
}

func (a *App) writeAlertsPNG(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	names := a.metricNames()
	x := make([]time.Time, len(alerts))
	series := make(map[string][]float64, len(names))

	for i, alert := range alerts {
		x[i] = alert.FiredAt
		for _, name := range names {
			value := 0.0
			for _, change := range alert.Changes {
				if change.Metric == name {
					value = change.Value.InexactFloat64()
					break
				}
			}
			series[name] = append(series[name], value)
		}
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: names[0],
		},
	}
	if len(names) > 1 {
		graph.YAxisSecondary = chart.YAxis{Name: names[1]}
	}

	for i, name := range names {
		ts := chart.TimeSeries{
			Name:    name,
			XValues: x,
			YValues: series[name],
		}
		if i > 0 {
			ts.YAxis = chart.YAxisSecondary
		}
		graph.Series = append(graph.Series, ts)
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
