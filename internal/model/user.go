package model

import "time"

// User represents an application user record as stored in the `users`
// table.  Credentials live with the identity provider; this service only
// needs the fields that make up a verified identity.
//
// Fields:
//
//	ID        – primary key identifier of the user.
//	Email     – unique email address.
//	FirstName – given name, sent to the flight provider.
//	LastName  – family name, used for provider verification.
//	CreatedAt – timestamp of creation.
type User struct {
	ID        uint64    `db:"id"`         // users.id
	Email     string    `db:"email"`      // users.email
	FirstName string    `db:"first_name"` // users.first_name
	LastName  string    `db:"last_name"`  // users.last_name
	CreatedAt time.Time `db:"created_at"` // users.created_at
}
