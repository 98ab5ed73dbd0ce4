package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertChange records one metric's state at the moment an alert fired.
type AlertChange struct {
	Metric    string          `json:"metric"`
	Value     decimal.Decimal `json:"value"`
	PctChange decimal.Decimal `json:"pct_change"`
	Direction string          `json:"direction"`
	Exceeded  bool            `json:"exceeded"`
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID        int64
	FiredAt   time.Time
	Symbol    string
	Changes   []AlertChange
	Message   string
	CreatedAt time.Time
}
