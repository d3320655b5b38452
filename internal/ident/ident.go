// Package ident provides small identity helpers shared by the coordinator
// and client packages: a process role for log prefixes, and a short-form
// UUID renderer so those prefixes stay readable.
package ident

import "strings"

// Role distinguishes the two process shapes that participate in a job.
type Role int

const (
	RoleUndefined Role = iota
	RoleCoordinator
	RoleClient
)

// String returns a human-readable form of a Role.
func (r Role) String() string {
	switch r {
	case RoleCoordinator:
		return "coordinator"
	case RoleClient:
		return "client"
	default:
		return "undefined"
	}
}

// Short returns the first hyphen-delimited segment of a UUID string, which
// is enough entropy to tell two concurrently running processes apart in a
// log prefix without printing the full 36 characters on every line.
func Short(uuid string) string {
	if i := strings.IndexByte(uuid, '-'); i != -1 {
		return uuid[:i]
	}
	return uuid
}
