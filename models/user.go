package models

import (
	"strings"
	"time"
)

// User is either the device owner (IsCurrentUser) or one of their contacts.
type User struct {
	UID           string    `bson:"_id" json:"uid"`
	FullName      string    `bson:"fullName" json:"fullName"`
	Tel           string    `bson:"tel" json:"tel"`
	Email         string    `bson:"email" json:"email"`
	IsCurrentUser bool      `bson:"isCurrentUser" json:"isCurrentUser"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
}

// IsValid reports whether the profile is complete enough to take part in a transaction.
func (u *User) IsValid() bool {
	return strings.TrimSpace(u.FullName) != "" &&
		strings.TrimSpace(u.Tel) != "" &&
		strings.TrimSpace(u.Email) != "" &&
		strings.Contains(u.Email, "@")
}

func (u *User) Ref() TransactionUser {
	return TransactionUser{
		UID:      u.UID,
		FullName: u.FullName,
		Tel:      u.Tel,
		Email:    u.Email,
	}
}

// Contact converts a relay user reference into a local, non-current user record.
func Contact(ref TransactionUser) *User {
	return &User{
		UID:      ref.UID,
		FullName: ref.FullName,
		Tel:      ref.Tel,
		Email:    ref.Email,
	}
}
