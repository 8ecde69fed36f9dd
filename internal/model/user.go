// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the only persistent entity: one row per registered account.
//
// Username is the identity key. It is unique across all rows and never
// changes after registration. PasswordHash holds the bcrypt digest and is
// tagged json:"-" so it can never be serialised by accident; code that
// needs a user outside the credential flow should use SessionUser instead.
//
// FirstName, LastName, Email and BirthDate are stored as submitted. No
// business rules are applied to them beyond "must be present".
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	FirstName    string    `json:"firstName" db:"first_name"`
	LastName     string    `json:"lastName"  db:"last_name"`
	Email        string    `json:"email"     db:"email"`
	BirthDate    string    `json:"birthDate" db:"birth_date"`
	ImageRef     string    `json:"imageRef"  db:"image_ref"` // stored name inside the upload dir
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// SessionUser is the copy of a User kept in session state.
// It deliberately has no password hash field.
type SessionUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	BirthDate string `json:"birthDate"`
	ImageRef  string `json:"imageRef"`
}

// SessionView strips the credential fields from u.
func (u *User) SessionView() SessionUser {
	return SessionUser{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		BirthDate: u.BirthDate,
		ImageRef:  u.ImageRef,
	}
}
