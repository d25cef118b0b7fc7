// Package repository defines the MySQL stores of the mint engine and the
// sentinel errors they share.  Higher layers match on these values to tell a
// missing row from a storage failure: ErrNotFound means the lookup ran and
// found nothing, while ErrConflict signals a write that collided with
// existing state (a duplicate key, a stale action index).
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a single row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update cannot be applied
// because of existing state, such as a duplicate primary key.
var ErrConflict = errors.New("conflict")

// isDuplicate reports whether err is a MySQL duplicate key error (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
