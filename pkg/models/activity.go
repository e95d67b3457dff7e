package models

import "time"

// Activity is owned by the activity CRUD collaborator; this engine only
// reads its identity, host and the auto-notify flag.
type Activity struct {
	ID           int64     `json:"-" db:"id"`
	UUID         string    `json:"uuid" db:"uuid"`
	Name         string    `json:"name" db:"name"`
	HostParentID int64     `json:"-" db:"host_parent_id"`
	HostChildID  int64     `json:"-" db:"host_child_id"`

	// AutoNotifyNewConnections gates unsolicited notifications when a new
	// connection activates. It never suppresses conversion of a pending
	// invitation the host registered explicitly.
	AutoNotifyNewConnections bool `json:"auto_notify_new_connections" db:"auto_notify_new_connections"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
