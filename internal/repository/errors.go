// Package repository defines errors shared by the store implementations in
// its subpackages. Campaign-specific sentinels live in service/campaign,
// next to the interface that demands them.
package repository

import "errors"

var (
	// ErrNotFound is returned when a database, subscriber, or tag does not
	// exist within the requested tenant.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when a subscriber email already exists
	// within the database.
	ErrDuplicateEmail = errors.New("subscriber email already exists")

	// ErrDuplicateName is returned when a tag or database name collides.
	ErrDuplicateName = errors.New("name already exists")
)
