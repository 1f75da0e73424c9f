// Package users manages operator accounts and their role assignments.
package users

import "time"

// User represents an operator account for administration.
type User struct {
	ID                 int64
	Email              string
	Name               string
	IsActive           bool
	NeedsPasswordReset bool
	RoleIDs            []int64
	RoleNames          []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
