// Package transaction drives one lend or return between two devices: the
// initiator publishes a share through the relay and polls for the answer, the
// acceptor confirms it, and both sides reconcile their local library.
package transaction

import (
	"github.com/kevinaaaquil/sharemybook/models"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseWaitingForScan
	PhaseConfirming
	PhaseSuccess
	PhaseError
)

var phaseNames = [...]string{"idle", "initializing", "waiting_for_scan", "confirming", "success", "error"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Terminal reports whether only a reset can leave the phase.
func (p Phase) Terminal() bool { return p == PhaseSuccess || p == PhaseError }

// Side is which end of the exchange this device plays.
type Side int

const (
	SideInitiator Side = iota + 1
	SideAcceptor
)

func (s Side) String() string {
	switch s {
	case SideInitiator:
		return "initiator"
	case SideAcceptor:
		return "acceptor"
	}
	return "none"
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is a snapshot of a session. Which fields are set depends on Phase:
// ShareID and QRPayload from WaitingForScan on, Record once a borrower is
// known, Message and Err only in Error.
type State struct {
	Phase     Phase               `json:"phase"`
	Side      Side                `json:"side,omitempty"`
	Action    models.Action       `json:"action,omitempty"`
	BookUID   string              `json:"bookUid,omitempty"`
	ShareID   string              `json:"shareId,omitempty"`
	QRPayload string              `json:"qrPayload,omitempty"`
	Record    *models.Transaction `json:"record,omitempty"`
	Message   string              `json:"error,omitempty"`
	Err       error               `json:"-"`
}

// Event moves a State forward through Transition.
type Event interface{ event() }

// Started begins an initiator run.
type Started struct {
	Action  models.Action
	BookUID string
}

// ShareCreated carries the relay-issued share once the QR code can be shown.
type ShareCreated struct {
	ShareID   string
	QRPayload string
}

// Scanned begins an acceptor run for a decoded share code.
type Scanned struct {
	ShareID string
}

// Confirmed carries a record that has a borrower.
type Confirmed struct {
	Record *models.Transaction
}

// Reconciled marks the local library as updated.
type Reconciled struct{}

type Failed struct {
	Err error
}

type Reset struct{}

func (Started) event()      {}
func (ShareCreated) event() {}
func (Scanned) event()      {}
func (Confirmed) event()    {}
func (Reconciled) event()   {}
func (Failed) event()       {}
func (Reset) event()        {}

// Transition returns the state after e. ok is false when e does not apply to
// s, in which case s is returned unchanged. Starting or scanning replaces
// whatever came before; the first terminal outcome wins otherwise.
func Transition(s State, e Event) (next State, ok bool) {
	switch e := e.(type) {
	case Reset:
		return State{}, true

	case Started:
		return State{Phase: PhaseInitializing, Side: SideInitiator, Action: e.Action, BookUID: e.BookUID}, true

	case Scanned:
		return State{Phase: PhaseConfirming, Side: SideAcceptor, ShareID: e.ShareID}, true

	case ShareCreated:
		if s.Phase != PhaseInitializing || e.ShareID == "" {
			return s, false
		}
		s.Phase = PhaseWaitingForScan
		s.ShareID = e.ShareID
		s.QRPayload = e.QRPayload
		return s, true

	case Confirmed:
		if !e.Record.Accepted() {
			return s, false
		}
		switch {
		case s.Phase == PhaseWaitingForScan:
		case s.Phase == PhaseConfirming && s.Record == nil:
		default:
			return s, false
		}
		s.Phase = PhaseConfirming
		s.Record = e.Record
		if s.Action == "" {
			s.Action = e.Record.Action
		}
		if s.BookUID == "" {
			s.BookUID = e.Record.Book.UID
		}
		return s, true

	case Reconciled:
		if s.Phase != PhaseConfirming || s.Record == nil {
			return s, false
		}
		s.Phase = PhaseSuccess
		return s, true

	case Failed:
		if s.Phase == PhaseIdle || s.Phase.Terminal() || e.Err == nil {
			return s, false
		}
		s.Phase = PhaseError
		s.Err = e.Err
		s.Message = e.Err.Error()
		return s, true
	}
	return s, false
}
