package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced by store operations. The service layer maps
// them onto user-facing error kinds.
var (
	ErrOrderingConflict      = errors.New("position taken by a concurrent write")
	ErrSlugTaken             = errors.New("slug already in use")
	ErrPathCollision         = errors.New("a sibling with this slug already exists")
	ErrCyclicMove            = errors.New("cannot move a node under its own subtree")
	ErrInviteExpired         = errors.New("invitation has expired")
	ErrInviteAlreadyAccepted = errors.New("invitation was already accepted")
	ErrAlreadyMember         = errors.New("user is already a workspace member")
	ErrInvitePending         = errors.New("a pending invitation already exists for this address")
	ErrStatusNotEmpty        = errors.New("status still has tasks")
	ErrLastStatus            = errors.New("workspace needs at least one status")
)

const (
	sqlstateUniqueViolation = "23505"
	sqlstateFKViolation     = "23503"
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateFKViolation
}
