// Package backup exports a user's timeline as JSON Lines and restores it.
//
// Each line is one Record tagged with its kind. Records are written in
// dependency order (account, preference, events, tasks, travel) so that a
// restore can insert them line by line. Account credentials are never
// exported.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// Record kinds.
const (
	KindAccount    = "account"
	KindPreference = "preference"
	KindEvent      = "event"
	KindTask       = "task"
	KindTravel     = "travel"
)

// Record is one line of an export.
type Record struct {
	Kind       string                  `json:"kind"`
	Account    *schema.Account         `json:"account,omitempty"`
	Preference *schema.FocusPreference `json:"preference,omitempty"`
	Event      *schema.Event           `json:"event,omitempty"`
	Task       *schema.Task            `json:"task,omitempty"`
	Travel     *schema.TravelSegment   `json:"travel,omitempty"`
}

// Counts tallies records by kind.
type Counts struct {
	Accounts    int `json:"accounts"`
	Preferences int `json:"preferences"`
	Events      int `json:"events"`
	Tasks       int `json:"tasks"`
	Travel      int `json:"travel"`
}

func (c *Counts) add(kind string) {
	switch kind {
	case KindAccount:
		c.Accounts++
	case KindPreference:
		c.Preferences++
	case KindEvent:
		c.Events++
	case KindTask:
		c.Tasks++
	case KindTravel:
		c.Travel++
	}
}

// Total returns the number of records counted.
func (c Counts) Total() int {
	return c.Accounts + c.Preferences + c.Events + c.Tasks + c.Travel
}

// Export writes every stored record of userID to w.
func Export(ctx context.Context, db *store.DB, userID string, w io.Writer) (Counts, error) {
	var counts Counts
	enc := json.NewEncoder(w)
	write := func(r Record) error {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write %s record: %w", r.Kind, err)
		}
		counts.add(r.Kind)
		return nil
	}

	acct, err := db.GetAccount(ctx, userID)
	switch {
	case err == nil:
		if err := write(Record{Kind: KindAccount, Account: acct}); err != nil {
			return counts, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return counts, err
	}

	pref, err := db.GetFocusPreference(ctx, userID)
	switch {
	case err == nil:
		if err := write(Record{Kind: KindPreference, Preference: pref}); err != nil {
			return counts, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return counts, err
	}

	events, err := db.ListEvents(ctx, store.EventFilter{UserID: userID})
	if err != nil {
		return counts, err
	}
	for _, e := range events {
		if err := write(Record{Kind: KindEvent, Event: e}); err != nil {
			return counts, err
		}
	}

	tasks, err := db.ListTasks(ctx, store.TaskFilter{UserID: userID, IncludeDone: true})
	if err != nil {
		return counts, err
	}
	for _, t := range tasks {
		if err := write(Record{Kind: KindTask, Task: t}); err != nil {
			return counts, err
		}
	}

	segments, err := db.ListTravelSegments(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return counts, err
	}
	for _, s := range segments {
		if err := write(Record{Kind: KindTravel, Travel: s}); err != nil {
			return counts, err
		}
	}

	return counts, nil
}

// ReadRecords parses a JSONL export.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", line, err)
		}
		if err := rec.validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Record) validate() error {
	switch r.Kind {
	case KindAccount:
		if r.Account == nil {
			return errors.New("account record without account")
		}
		return r.Account.Validate()
	case KindPreference:
		if r.Preference == nil {
			return errors.New("preference record without preference")
		}
		return r.Preference.Validate()
	case KindEvent:
		if r.Event == nil {
			return errors.New("event record without event")
		}
		return r.Event.Validate()
	case KindTask:
		if r.Task == nil {
			return errors.New("task record without task")
		}
		return r.Task.Validate()
	case KindTravel:
		if r.Travel == nil {
			return errors.New("travel record without segment")
		}
		return r.Travel.Validate()
	}
	return fmt.Errorf("unknown record kind %q", r.Kind)
}

// RestoreOptions configures Restore.
type RestoreOptions struct {
	// DryRun parses and validates without writing
	DryRun bool
	// Snapshot copies the database next to itself before writing
	Snapshot bool
}

// RestoreResult reports what Restore did.
type RestoreResult struct {
	Restored Counts   `json:"restored"`
	Snapshot string   `json:"snapshot,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Restore upserts the records of a JSONL export at path. Records are applied
// in one transaction; a record that fails to store is reported in Errors and
// the rest still apply. An existing account keeps its credential.
func Restore(ctx context.Context, db *store.DB, path string, opts RestoreOptions) (*RestoreResult, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	records, err := ReadRecords(file)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	if opts.DryRun {
		for _, r := range records {
			result.Restored.add(r.Kind)
		}
		return result, nil
	}

	if opts.Snapshot {
		snap := db.Path() + ".backup." + time.Now().Format("20060102-150405")
		if err := db.Snapshot(ctx, snap); err != nil {
			return nil, err
		}
		result.Snapshot = snap
	}

	err = db.WithTx(ctx, func(q *store.Queries) error {
		for _, r := range records {
			if err := apply(ctx, q, r); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Kind, err))
				continue
			}
			result.Restored.add(r.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func apply(ctx context.Context, q *store.Queries, r Record) error {
	switch r.Kind {
	case KindAccount:
		if existing, err := q.GetAccount(ctx, r.Account.ID); err == nil {
			r.Account.Credential = existing.Credential
		}
		return q.UpsertAccount(ctx, r.Account)
	case KindPreference:
		return q.UpsertFocusPreference(ctx, r.Preference)
	case KindEvent:
		return q.UpsertEvent(ctx, r.Event)
	case KindTask:
		return q.UpsertTask(ctx, r.Task)
	case KindTravel:
		return q.UpsertTravelSegment(ctx, r.Travel)
	}
	return fmt.Errorf("unknown record kind %q", r.Kind)
}
