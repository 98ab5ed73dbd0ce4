package baseline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/metrics"
)

// Record is the persisted monitor state: the most recently observed metric
// values, the values at the time of the last notification, and the timestamp
// of the last successful cycle.
type Record struct {
	Current      metrics.Set
	LastNotified metrics.Set
	LastUpdate   *time.Time
}

// NewRecord returns a zeroed record over the given metric names.
func NewRecord(names []string) Record {
	return Record{
		Current:      metrics.NewSet(names...),
		LastNotified: metrics.NewSet(names...),
	}
}

const lastNotificationPrefix = "last_notification_"

// Store reads and writes the baseline record as a flat JSON document:
//
//	{"price": 1.2, "last_notification_price": 1.1, ..., "last_update": "..."}
//
// The file is replaced whole on every save; a missing file is not an error.
type Store struct {
	path   string
	names  []string
	logger zerolog.Logger
}

// NewStore constructs a file-backed baseline store tracking the given metrics.
func NewStore(path string, names []string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		names:  append([]string(nil), names...),
		logger: logger.With().Str("component", "baseline_store").Logger(),
	}
}

// Load reads the persisted record. When no file exists yet it returns a
// zeroed record so the first cycle starts from a clean baseline.
func (s *Store) Load() (Record, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info().Str("path", s.path).Msg("no previous baseline found, starting fresh")
			return NewRecord(s.names), nil
		}
		return Record{}, fmt.Errorf("read baseline: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Record{}, fmt.Errorf("decode baseline: %w", err)
	}

	rec := NewRecord(s.names)
	for _, name := range s.names {
		current, err := parseNumberField(doc, name)
		if err != nil {
			return Record{}, err
		}
		notified, err := parseNumberField(doc, lastNotificationPrefix+name)
		if err != nil {
			return Record{}, err
		}
		rec.Current.Set(name, current)
		rec.LastNotified.Set(name, notified)
	}

	if v, ok := doc["last_update"].(string); ok && v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Record{}, fmt.Errorf("parse last_update: %w", err)
		}
		rec.LastUpdate = &ts
	}

	return rec, nil
}

// Save writes the full record atomically via a temp file rename.
func (s *Store) Save(rec Record) error {
	doc := make(map[string]any, 2*len(s.names)+1)
	for _, name := range s.names {
		doc[name] = json.Number(rec.Current.Get(name).String())
		doc[lastNotificationPrefix+name] = json.Number(rec.LastNotified.Get(name).String())
	}
	if rec.LastUpdate != nil {
		doc["last_update"] = rec.LastUpdate.UTC().Format(time.RFC3339)
	} else {
		doc["last_update"] = nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create baseline temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close baseline temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace baseline file: %w", err)
	}

	return nil
}

func parseNumberField(doc map[string]any, key string) (decimal.Decimal, error) {
	v, ok := doc[key]
	if !ok || v == nil {
		return decimal.Zero, nil
	}

	switch value := v.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(value.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse baseline field %s: %w", key, err)
		}
		return parsed, nil
	case string:
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse baseline field %s: %w", key, err)
		}
		return parsed, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("baseline field %s has unexpected type %T", key, v)
	}
}
