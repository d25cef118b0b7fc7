package model

import "time"

// CategoryInventory is the seat inventory of one ticket category.  Seats is
// the total capacity and Reserved the part already taken by reservation
// flows outside the mint engine.  The engine never mutates these values; it
// only reads them to decide how many new authorizations a category can take.
//
// Fields:
//  ID           – category identifier.
//  GroupID      – bytes32 hex identifier of the owning group.
//  CategoryName – human readable name, at most 32 bytes once encoded.
//  Seats        – total number of seats.
//  Reserved     – seats already reserved (Reserved <= Seats).
type CategoryInventory struct {
	ID           string    // categories.id
	GroupID      string    // categories.group_id
	CategoryName string    // categories.category_name
	Seats        uint64    // categories.seats
	Reserved     uint64    // categories.reserved
	CreatedAt    time.Time // categories.created_at
	UpdatedAt    time.Time // categories.updated_at
}

// Unreserved returns the number of seats not held by reservations.
func (c CategoryInventory) Unreserved() int64 {
	if c.Reserved >= c.Seats {
		return 0
	}
	return int64(c.Seats - c.Reserved)
}
