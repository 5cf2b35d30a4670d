package healing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// currentSchemaVersion is written into every document this package saves.
// Version 1 documents and bare arrays predate evidence and confidence.
const currentSchemaVersion = 2

// document is the on-disk shape of the store.
type document struct {
	SchemaVersion int       `json:"schemaVersion"`
	Records       []*Record `json:"records"`
}

// legacyRecord is the pre-evidence record shape.
type legacyRecord struct {
	TargetKey     string          `json:"targetKey"`
	URL           string          `json:"url"`
	Action        json.RawMessage `json:"action"`
	SuccessCount  int             `json:"successCount"`
	LastSuccessAt time.Time       `json:"lastSuccessAt"`
}

// decodeDocument parses raw store bytes, migrating older shapes.
// The returned flag reports whether a migration happened.
func decodeDocument(raw []byte) ([]*Record, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, nil
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, false, fmt.Errorf("healing: decode legacy array: %w", err)
		}
		records, err := migrateRaw(raws)
		return records, true, err
	}

	var probe struct {
		SchemaVersion int             `json:"schemaVersion"`
		Records       json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, false, fmt.Errorf("healing: decode document: %w", err)
	}
	if len(probe.Records) == 0 {
		return nil, false, nil
	}

	if probe.SchemaVersion < currentSchemaVersion {
		var raws []json.RawMessage
		if err := json.Unmarshal(probe.Records, &raws); err != nil {
			return nil, false, fmt.Errorf("healing: decode v%d records: %w", probe.SchemaVersion, err)
		}
		records, err := migrateRaw(raws)
		return records, true, err
	}

	var records []*Record
	if err := json.Unmarshal(probe.Records, &records); err != nil {
		return nil, false, fmt.Errorf("healing: decode records: %w", err)
	}
	return normalizeRecords(records), false, nil
}

// normalizeRecords drops keyless entries and fills derived fields.
func normalizeRecords(records []*Record) []*Record {
	out := records[:0]
	for _, r := range records {
		if r == nil || r.TargetKey == "" {
			continue
		}
		if r.Domain == "" {
			r.Domain = DomainOf(r.URL)
		}
		r.recompute()
		out = append(out, r)
	}
	return out
}

// migrateRaw migrates entries of an unversioned document one by one. Entries
// that already carry evidence or confidence are read as current records.
func migrateRaw(raws []json.RawMessage) ([]*Record, error) {
	out := make([]*Record, 0, len(raws))
	for i, raw := range raws {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("healing: decode record %d: %w", i, err)
		}
		_, hasEvidence := fields["evidence"]
		_, hasConfidence := fields["confidence"]
		if hasEvidence || hasConfidence {
			var r Record
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, fmt.Errorf("healing: decode record %d: %w", i, err)
			}
			out = append(out, normalizeRecords([]*Record{&r})...)
			continue
		}
		var l legacyRecord
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("healing: decode legacy record %d: %w", i, err)
		}
		migrated, err := migrate([]legacyRecord{l})
		if err != nil {
			return nil, err
		}
		out = append(out, migrated...)
	}
	return out, nil
}

// migrate lifts legacy records into the current shape without touching disk.
func migrate(legacy []legacyRecord) ([]*Record, error) {
	out := make([]*Record, 0, len(legacy))
	for i, l := range legacy {
		if l.TargetKey == "" {
			continue
		}
		r := &Record{
			TargetKey:     l.TargetKey,
			URL:           l.URL,
			Domain:        DomainOf(l.URL),
			SuccessCount:  l.SuccessCount,
			LastSuccessAt: l.LastSuccessAt,
		}
		if len(l.Action) > 0 {
			if err := json.Unmarshal(l.Action, &r.Action); err != nil {
				return nil, fmt.Errorf("healing: migrate record %d: %w", i, err)
			}
		}
		// A legacy entry only existed because something succeeded once.
		if r.SuccessCount < 1 {
			r.SuccessCount = 1
		}
		r.FailCount = 0
		r.recompute()
		r.Evidence = Evidence{
			OriginalSelector: r.Action.Selector,
			HealedSelector:   r.Action.Selector,
			PageURL:          l.URL,
			HealingMethod:    MethodMigration,
			Timestamp:        l.LastSuccessAt,
		}
		out = append(out, r)
	}
	return out, nil
}

// readDocument loads the store file. A missing file is an empty store.
func readDocument(path string) ([]*Record, bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("healing: read %s: %w", path, err)
	}
	return decodeDocument(raw)
}

// writeDocument replaces the store file atomically.
func writeDocument(path string, records []*Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("healing: create store directory: %w", err)
	}
	if records == nil {
		records = []*Record{}
	}
	b, err := json.MarshalIndent(document{SchemaVersion: currentSchemaVersion, Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("healing: encode document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("healing: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("healing: atomic rename %s: %w", path, err)
	}
	return nil
}
