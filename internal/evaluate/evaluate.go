package evaluate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/baseline"
	"github.com/easygo-dev/token/internal/metrics"
)

var hundred = decimal.NewFromInt(100)

// Change captures the evaluation of one tracked metric.
type Change struct {
	Spec      metrics.Spec
	Current   decimal.Decimal
	PctChange decimal.Decimal
	Direction string
	Exceeded  bool
}

// Result is the outcome of evaluating a fresh observation against the
// baseline record.
type Result struct {
	Changes      []Change
	ShouldNotify bool
	Message      string
}

// Evaluate computes per-metric percentage changes against the last-notified
// baseline and decides whether any tracked metric moved past its threshold.
// Pure computation: no I/O, no errors.
func Evaluate(token metrics.TokenData, rec baseline.Record, specs []metrics.Spec) Result {
	result := Result{Changes: make([]Change, 0, len(specs))}

	for _, spec := range specs {
		current := token.Values.Get(spec.Name)

		// A zero baseline means no notification has fired yet; comparing the
		// fresh value against itself reports exactly 0% instead of dividing
		// by zero or flagging a spurious jump on first run.
		previous := rec.LastNotified.Get(spec.Name)
		if previous.IsZero() {
			previous = current
		}

		pct := decimal.Zero
		if !previous.IsZero() {
			pct = current.Sub(previous).Div(previous).Mul(hundred)
		}

		change := Change{
			Spec:      spec,
			Current:   current,
			PctChange: pct,
			Direction: classifyChange(pct),
			Exceeded:  pct.Abs().GreaterThanOrEqual(spec.ThresholdPct),
		}
		if change.Exceeded {
			result.ShouldNotify = true
		}
		result.Changes = append(result.Changes, change)
	}

	result.Message = renderMessage(token, result.Changes)
	return result
}

// renderMessage builds the Telegram HTML body, listing only the metrics whose
// own threshold was exceeded.
func renderMessage(token metrics.TokenData, changes []Change) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("<b>%s (%s) Update</b>\n\n", token.Name, token.Symbol))

	for _, change := range changes {
		if !change.Exceeded {
			continue
		}
		spec := change.Spec
		builder.WriteString(fmt.Sprintf("%s %s: %s%s\n",
			spec.Emoji, spec.Label, spec.Unit, change.Current.StringFixed(spec.Places)))
		builder.WriteString(fmt.Sprintf("%s %s: %s%%\n",
			spec.ChangeEmoji, spec.ChangeLabel, change.PctChange.StringFixed(2)))
	}

	return builder.String()
}

func classifyChange(pct decimal.Decimal) string {
	switch pct.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}
