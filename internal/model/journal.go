package model

import (
	"encoding/json"
)

// JournalEntry records one committed ledger operation.
type JournalEntry struct {
	ID          string            `json:"id"`
	Op          string            `json:"op"`
	Caller      string            `json:"caller"`
	Accounts    []string          `json:"accounts"`
	Written     []string          `json:"written"`
	Detail      map[string]string `json:"detail,omitempty"`
	Refunds     []RefundRecord    `json:"refunds,omitempty"`
	CommittedAt string            `json:"committed_at"`
}

// RefundRecord is a storage deposit returned when a record was closed.
type RefundRecord struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Lamports uint64 `json:"lamports"`
}

// MarshalJSON keeps nil slices as empty arrays so every line has the same shape.
func (e JournalEntry) MarshalJSON() ([]byte, error) {
	type Alias JournalEntry
	a := Alias(e)
	if a.Accounts == nil {
		a.Accounts = []string{}
	}
	if a.Written == nil {
		a.Written = []string{}
	}
	return json.Marshal(a)
}
