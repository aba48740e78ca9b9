// Package directory keeps a local copy of the CRM staff directory so the
// dashboard keeps working when the CRM is slow or down.
package directory

import "time"

// StaffUser is one CRM staff member as stored locally.
type StaffUser struct {
	ID        string    `json:"id,omitempty"`
	CRMUserID string    `json:"ghlUserId"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	SyncedAt  time.Time `json:"lastSyncedAt,omitempty"`
}

// Source identifies where a directory read was served from.
type Source string

const (
	SourceDB  Source = "db"
	SourceCRM Source = "crm-api"
)

// SyncResult summarizes one sync run.
type SyncResult struct {
	FromAPI int `json:"fromApi"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
}
