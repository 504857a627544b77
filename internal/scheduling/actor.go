package scheduling

import (
	"strings"

	"github.com/google/uuid"
)

// RoleSet is the capability set of a caller.
type RoleSet uint8

const (
	RoleTherapist RoleSet = 1 << iota
	RoleAdmin
)

func (r RoleSet) Has(role RoleSet) bool {
	return r&role != 0
}

// ParseRoles collapses the legacy single role and the roles array into one set.
// Unknown names are ignored.
func ParseRoles(role string, roles []string) RoleSet {
	var set RoleSet
	for _, name := range append([]string{role}, roles...) {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "therapist":
			set |= RoleTherapist
		case "admin":
			set |= RoleAdmin
		}
	}
	return set
}

// Actor is the authenticated caller, resolved once at the transport boundary.
type Actor struct {
	UserID uuid.UUID
	Roles  RoleSet
}

func (a Actor) IsAdmin() bool     { return a.Roles.Has(RoleAdmin) }
func (a Actor) IsTherapist() bool { return a.Roles.Has(RoleTherapist) }

// canAccess reports whether the actor may read or mutate a record owned by ownerID.
func (a Actor) canAccess(ownerID uuid.UUID) bool {
	return a.IsAdmin() || (a.IsTherapist() && a.UserID == ownerID)
}
