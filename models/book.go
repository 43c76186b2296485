package models

import "time"

type Book struct {
	UID          string    `bson:"_id" json:"uid"`
	ISBN         string    `bson:"isbn" json:"isbn"`
	Title        string    `bson:"title" json:"title"`
	Authors      string    `bson:"authors" json:"authors"` // comma separated, as shown on the cover
	CoverURL     string    `bson:"coverUrl,omitempty" json:"coverUrl,omitempty"`
	OwnerUUID    string    `bson:"ownerUuid" json:"ownerUuid"`
	BorrowerUUID *string   `bson:"borrowerUuid,omitempty" json:"borrowerUuid,omitempty"` // nil unless lent
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// IsLent reports whether the book currently has a borrower.
func (b *Book) IsLent() bool { return b.BorrowerUUID != nil }

func (b *Book) IsOwnedBy(userUID string) bool { return b.OwnerUUID == userUID }

func (b *Book) IsBorrowedBy(userUID string) bool {
	return b.BorrowerUUID != nil && *b.BorrowerUUID == userUID
}

// LendTo sets the borrower; an empty uid clears it.
func (b *Book) LendTo(userUID string) {
	if userUID == "" {
		b.BorrowerUUID = nil
		return
	}
	b.BorrowerUUID = &userUID
}

// Snapshot is the subset of the book that travels through the relay.
func (b *Book) Snapshot() TransactionBook {
	return TransactionBook{
		UID:     b.UID,
		ISBN:    b.ISBN,
		Title:   b.Title,
		Authors: b.Authors,
		Covers:  b.CoverURL,
	}
}
