package model

import "time"

// User represents a platform user as stored in the `users` table.  Users are
// identified on chain by their wallet address.
//
// Fields:
//  ID        – primary key identifier of the user.
//  Address   – checksummed wallet address, unique.
//  Email     – contact email.
//  IsActive  – whether the account is active.
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type User struct {
	ID        string    // users.id
	Address   string    // users.address
	Email     string    // users.email
	IsActive  bool      // users.is_active
	CreatedAt time.Time // users.created_at
	UpdatedAt time.Time // users.updated_at
}
