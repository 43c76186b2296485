package models

import (
	"fmt"
	"strings"
)

type Action string

const (
	ActionLoan   Action = "LOAN"
	ActionReturn Action = "RETURN"
)

func (a Action) Valid() bool { return a == ActionLoan || a == ActionReturn }

// ParseAction accepts the wire names case-insensitively.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionLoan:
		return ActionLoan, nil
	case ActionReturn:
		return ActionReturn, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// TransactionBook is the book snapshot carried by a share transaction.
type TransactionBook struct {
	UID     string `json:"uid"`
	ISBN    string `json:"isbn"`
	Title   string `json:"title"`
	Authors string `json:"authors"`
	Covers  string `json:"covers,omitempty"`
}

type TransactionUser struct {
	UID      string `json:"uid"`
	FullName string `json:"fullName"`
	Tel      string `json:"tel"`
	Email    string `json:"email"`
}

// Transaction is the relay's record of one share. Borrower stays nil until a
// device accepts it.
type Transaction struct {
	ShareID  string           `json:"shareId,omitempty"`
	Action   Action           `json:"action"`
	Book     TransactionBook  `json:"book"`
	Owner    TransactionUser  `json:"owner"`
	Borrower *TransactionUser `json:"borrower,omitempty"`
}

func (t *Transaction) Accepted() bool { return t != nil && t.Borrower != nil }

// Wire payloads of the relay API.

type InitRequest struct {
	Action Action          `json:"action"`
	Book   TransactionBook `json:"book"`
	Owner  TransactionUser `json:"owner"`
}

type InitResponse struct {
	ShareID string `json:"shareId"`
}

type AcceptRequest struct {
	Borrower TransactionUser `json:"borrower"`
}
