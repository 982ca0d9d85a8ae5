// Package domain contains core concepts of the incident platform.
// No runtime, network, or UI logic should be added here.
package domain

const (
	RoleUser   = "user"
	RoleHelper = "helper"
	RoleAdmin  = "admin"
)

// Identity is the authenticated principal behind a session.
// The zero value is the anonymous, unauthenticated marker.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

func (i Identity) Anonymous() bool {
	return i.UserID == ""
}
