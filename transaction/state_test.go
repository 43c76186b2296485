package transaction

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kevinaaaquil/sharemybook/models"
)

func accepted() *models.Transaction {
	return &models.Transaction{
		Action:   models.ActionLoan,
		Book:     models.TransactionBook{UID: "b1"},
		Owner:    models.TransactionUser{UID: "alice"},
		Borrower: &models.TransactionUser{UID: "bob"},
	}
}

func TestInitiatorPath(t *testing.T) {
	steps := []struct {
		event Event
		want  Phase
	}{
		{Started{Action: models.ActionLoan, BookUID: "b1"}, PhaseInitializing},
		{ShareCreated{ShareID: "s1", QRPayload: `{"shareId":"s1"}`}, PhaseWaitingForScan},
		{Confirmed{Record: accepted()}, PhaseConfirming},
		{Reconciled{}, PhaseSuccess},
	}
	var s State
	for _, step := range steps {
		next, ok := Transition(s, step.event)
		if !ok || next.Phase != step.want {
			t.Fatalf("%T from %s: got %s ok=%v", step.event, s.Phase, next.Phase, ok)
		}
		s = next
	}
	if s.ShareID != "s1" || s.Record == nil || s.Side != SideInitiator {
		t.Fatalf("final state: %+v", s)
	}
}

func TestAcceptorEntersConfirming(t *testing.T) {
	s, ok := Transition(State{}, Scanned{ShareID: "s1"})
	if !ok || s.Phase != PhaseConfirming || s.Side != SideAcceptor {
		t.Fatalf("scan: %+v", s)
	}
	s, ok = Transition(s, Confirmed{Record: accepted()})
	if !ok || s.Action != models.ActionLoan || s.BookUID != "b1" {
		t.Fatalf("confirm: %+v", s)
	}
	if _, ok := Transition(s, Confirmed{Record: accepted()}); ok {
		t.Fatal("a second Confirmed must be rejected")
	}
}

func TestRejectedTransitions(t *testing.T) {
	waiting := State{Phase: PhaseWaitingForScan, Side: SideInitiator, ShareID: "s1"}
	pending := &models.Transaction{Action: models.ActionLoan}
	tests := []struct {
		name  string
		from  State
		event Event
	}{
		{"share before start", State{}, ShareCreated{ShareID: "s1"}},
		{"empty share", State{Phase: PhaseInitializing}, ShareCreated{}},
		{"confirm without borrower", waiting, Confirmed{Record: pending}},
		{"reconcile before confirm", waiting, Reconciled{}},
		{"fail when idle", State{}, Failed{Err: errors.New("x")}},
		{"fail after success", State{Phase: PhaseSuccess, Record: accepted()}, Failed{Err: errors.New("x")}},
		{"fail after error", State{Phase: PhaseError, Message: "first"}, Failed{Err: errors.New("second")}},
	}
	for _, tt := range tests {
		next, ok := Transition(tt.from, tt.event)
		if ok {
			t.Errorf("%s: transition accepted, got %s", tt.name, next.Phase)
		}
		if next.Phase != tt.from.Phase || next.Message != tt.from.Message {
			t.Errorf("%s: state changed on rejected event", tt.name)
		}
	}
}

func TestFailedCarriesMessage(t *testing.T) {
	s := State{Phase: PhaseWaitingForScan, ShareID: "s1"}
	s, ok := Transition(s, Failed{Err: &TimeoutError{Attempts: 60}})
	if !ok || s.Phase != PhaseError || s.Message != "timeout" {
		t.Fatalf("got %+v", s)
	}
	var te *TimeoutError
	if !errors.As(s.Err, &te) {
		t.Fatalf("error lost: %v", s.Err)
	}
}

func TestResetFromAnywhere(t *testing.T) {
	for _, p := range []Phase{PhaseInitializing, PhaseWaitingForScan, PhaseConfirming, PhaseSuccess, PhaseError} {
		s, ok := Transition(State{Phase: p, ShareID: "s"}, Reset{})
		if !ok || s.Phase != PhaseIdle || s.ShareID != "" {
			t.Errorf("reset from %s: %+v", p, s)
		}
	}
}

func TestStateJSON(t *testing.T) {
	b, err := json.Marshal(State{Phase: PhaseWaitingForScan, Side: SideInitiator, ShareID: "s1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)
	for _, want := range []string{`"phase":"waiting_for_scan"`, `"side":"initiator"`, `"shareId":"s1"`} {
		if !strings.Contains(got, want) {
			t.Errorf("%s missing %s", got, want)
		}
	}
}
