package schema

import (
	"fmt"
	"strings"
	"time"
)

// Account is a user as seen by the reconciliation driver: an identifier,
// an optional remote calendar credential and an eligibility switch.
type Account struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Credential  string    `json:"-"`
	CalendarURL string    `json:"calendar_url,omitempty"`
	SyncEnabled bool      `json:"sync_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Linked reports whether the account carries a usable remote credential.
func (a *Account) Linked() bool {
	return a != nil && strings.TrimSpace(a.Credential) != ""
}

// Eligible reports whether the batch driver should reconcile this account.
func (a *Account) Eligible() bool {
	return a.Linked() && a.SyncEnabled
}

// Validate checks the account's fields.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
