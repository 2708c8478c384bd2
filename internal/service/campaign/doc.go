// Package campaign implements campaign lifecycle management.
//
// The service layer owns the Draft → Scheduled → Sending → Sent state
// machine: scheduling validation, the two-phase send commit that freezes the
// recipient snapshot, unscheduling, cloning, and test sends. It depends on
// the Store interface defined in this package and should never import from
// api/.
//
// Store implementations live in repository/postgres/ and repository/memory/.
package campaign
