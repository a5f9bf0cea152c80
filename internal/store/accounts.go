package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mschirtzinger/planner/internal/schema"
)

// UpsertAccount inserts or updates an account.
func (q *Queries) UpsertAccount(ctx context.Context, a *schema.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	_, err := q.q.ExecContext(ctx, `
	INSERT INTO accounts (id, name, credential, calendar_url, sync_enabled, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		credential = excluded.credential,
		calendar_url = excluded.calendar_url,
		sync_enabled = excluded.sync_enabled
	`,
		a.ID, a.Name, nullString(a.Credential), nullString(a.CalendarURL),
		boolToInt(a.SyncEnabled), timeToString(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", a.ID, err)
	}
	return nil
}

// GetAccount retrieves an account by ID.
func (q *Queries) GetAccount(ctx context.Context, id string) (*schema.Account, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, name, credential, calendar_url, sync_enabled, created_at
		FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return a, nil
}

// ListAccounts returns accounts ordered by creation. With eligibleOnly set
// only accounts with a credential and sync enabled are returned.
func (q *Queries) ListAccounts(ctx context.Context, eligibleOnly bool) ([]*schema.Account, error) {
	query := `SELECT id, name, credential, calendar_url, sync_enabled, created_at FROM accounts`
	if eligibleOnly {
		query += ` WHERE sync_enabled = 1 AND credential IS NOT NULL AND TRIM(credential) != ''`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*schema.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// SetSyncEnabled toggles whether the batch driver picks the account up.
func (q *Queries) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := q.q.ExecContext(ctx, `UPDATE accounts SET sync_enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("account", id)
	}
	return nil
}

func scanAccount(row rowScanner) (*schema.Account, error) {
	var a schema.Account
	var credential, calendarURL sql.NullString
	var enabled int
	var createdAt string
	if err := row.Scan(&a.ID, &a.Name, &credential, &calendarURL, &enabled, &createdAt); err != nil {
		return nil, err
	}
	a.Credential = credential.String
	a.CalendarURL = calendarURL.String
	a.SyncEnabled = enabled != 0
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
