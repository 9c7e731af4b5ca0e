package repository

import "github.com/pkg/errors"

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	// ErrLocationMismatch is returned by a conditional relocation when the
	// task is no longer at the expected location.
	ErrLocationMismatch = errors.New("location mismatch")
)

// ErrReferenced is returned when deleting a record other records still point to.
var ErrReferenced = errors.New("still referenced")
