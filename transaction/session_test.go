package transaction

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/relay"
	"github.com/kevinaaaquil/sharemybook/scan"
	"github.com/kevinaaaquil/sharemybook/service"
	"github.com/kevinaaaquil/sharemybook/store"
)

var fast = WithPolling(PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 400})

func waitFor(t *testing.T, s *Session, phase Phase) State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st := s.State()
		if st.Phase == phase {
			return st
		}
		if st.Phase.Terminal() {
			t.Fatalf("want %s, session ended in %s: %s", phase, st.Phase, st.Message)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, at %s", phase, s.State().Phase)
	return State{}
}

func finish(t *testing.T, s *Session) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	st, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v (state %s)", err, st.Phase)
	}
	return st
}

func relayClient(t *testing.T) *service.RelayClient {
	t.Helper()
	srv := httptest.NewServer(relay.NewHandler(relay.NewMemoryStore(), time.Minute).Router())
	t.Cleanup(srv.Close)
	return service.NewRelayClient(srv.URL, time.Second)
}

// exchange runs one transaction between the two devices through the QR payload.
func exchange(t *testing.T, initiator, acceptor *Session, action models.Action, bookUID string) (State, State) {
	t.Helper()
	initiator.Start(action, bookUID)
	waiting := waitFor(t, initiator, PhaseWaitingForScan)

	res, err := scan.Decode(waiting.QRPayload, scan.FormatText)
	if err != nil {
		t.Fatalf("decode qr: %v", err)
	}
	if res.ShareID != waiting.ShareID {
		t.Fatalf("qr carries %q, want %q", res.ShareID, waiting.ShareID)
	}
	acceptor.Accept(res.ShareID)
	return finish(t, initiator), finish(t, acceptor)
}

func TestLoanAndReturnBetweenDevices(t *testing.T) {
	client := relayClient(t)
	aliceLib := newLibrary(t, alice)
	bobLib := newLibrary(t, bob)
	addBook(t, aliceLib, "b1", alice.UID, "")
	ctx := context.Background()

	aliceDev := NewSession(client, aliceLib, fast)
	bobDev := NewSession(client, bobLib, fast)

	// Loan.
	owner, borrower := exchange(t, aliceDev, bobDev, models.ActionLoan, "b1")
	if owner.Phase != PhaseSuccess || borrower.Phase != PhaseSuccess {
		t.Fatalf("loan: owner %s %q, borrower %s %q", owner.Phase, owner.Message, borrower.Phase, borrower.Message)
	}
	if owner.Record.Borrower.UID != bob.UID {
		t.Fatalf("owner record: %+v", owner.Record)
	}
	if b, _ := aliceLib.BookByUID(ctx, "b1"); !b.IsBorrowedBy(bob.UID) {
		t.Fatalf("owner copy not lent: %+v", b)
	}
	if b, _ := bobLib.BookByUID(ctx, "b1"); b == nil || b.OwnerUUID != alice.UID || !b.IsBorrowedBy(bob.UID) {
		t.Fatalf("borrower copy: %+v", b)
	}
	if c, _ := aliceLib.UserByUID(ctx, bob.UID); c == nil || c.Email != bob.Email {
		t.Fatalf("owner should know borrower: %+v", c)
	}
	if c, _ := bobLib.UserByUID(ctx, alice.UID); c == nil || c.Tel != alice.Tel {
		t.Fatalf("borrower should know owner: %+v", c)
	}

	// Return.
	owner, borrower = exchange(t, aliceDev, bobDev, models.ActionReturn, "b1")
	if owner.Phase != PhaseSuccess || borrower.Phase != PhaseSuccess {
		t.Fatalf("return: owner %s %q, borrower %s %q", owner.Phase, owner.Message, borrower.Phase, borrower.Message)
	}
	if b, _ := aliceLib.BookByUID(ctx, "b1"); b == nil || b.IsLent() {
		t.Fatalf("owner copy after return: %+v", b)
	}
	if b, _ := bobLib.BookByUID(ctx, "b1"); b != nil {
		t.Fatalf("borrower copy should be gone: %+v", b)
	}
}

func TestInitiatorValidation(t *testing.T) {
	incomplete := &models.User{UID: "carol", FullName: "Carol", Tel: "", Email: "carol@example.com"}
	tests := []struct {
		name    string
		profile *models.User
		book    func(t *testing.T, db *store.SQLite)
		action  models.Action
		want    string
	}{
		{"no profile", nil, nil, models.ActionLoan, ReasonProfileRequired},
		{"incomplete profile", incomplete, nil, models.ActionLoan, ReasonProfileIncomplete},
		{"missing book", alice, nil, models.ActionLoan, ReasonBookNotFound},
		{"not owner", alice, func(t *testing.T, db *store.SQLite) { addBook(t, db, "b1", bob.UID, "") }, models.ActionLoan, ReasonNotOwner},
		{"not owner and lent", alice, func(t *testing.T, db *store.SQLite) { addBook(t, db, "b1", bob.UID, "dave") }, models.ActionLoan, ReasonNotOwner},
		{"already lent", alice, func(t *testing.T, db *store.SQLite) { addBook(t, db, "b1", alice.UID, bob.UID) }, models.ActionLoan, ReasonAlreadyLent},
		{"return not lent", alice, func(t *testing.T, db *store.SQLite) { addBook(t, db, "b1", alice.UID, "") }, models.ActionReturn, ReasonNotLent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newLibrary(t, tt.profile)
			if tt.book != nil {
				tt.book(t, db)
			}
			fake := &scriptedRelay{shareID: "s1", results: []result{{tx: pending()}}}
			s := NewSession(fake, db, fast)
			s.Start(tt.action, "b1")
			st := finish(t, s)
			if st.Phase != PhaseError || st.Message != tt.want {
				t.Fatalf("got %s %q, want error %q", st.Phase, st.Message, tt.want)
			}
			var ve *ValidationError
			if !errors.As(st.Err, &ve) {
				t.Fatalf("want ValidationError, got %T", st.Err)
			}
			if fake.pollCount() != 0 {
				t.Fatal("relay contacted despite failed validation")
			}
		})
	}
}

func TestInitFailureSurfacesRelayError(t *testing.T) {
	db := newLibrary(t, alice)
	addBook(t, db, "b1", alice.UID, "")
	s := NewSession(&scriptedRelay{initErr: &service.RelayError{Code: 503, Body: "down"}}, db, fast)
	s.Start(models.ActionLoan, "b1")
	st := finish(t, s)
	if st.Phase != PhaseError || st.Message != "relay returned 503: down" {
		t.Fatalf("got %s %q", st.Phase, st.Message)
	}
}

func TestEmptyShareIDEndsInError(t *testing.T) {
	db := newLibrary(t, alice)
	addBook(t, db, "b1", alice.UID, "")
	fake := &scriptedRelay{shareID: "", results: []result{{tx: pending()}}}
	s := NewSession(fake, db, fast)
	s.Start(models.ActionLoan, "b1")
	st := finish(t, s)
	if st.Phase != PhaseError || !errors.Is(st.Err, ErrEmptyShare) {
		t.Fatalf("got %s %q", st.Phase, st.Message)
	}
	if fake.pollCount() != 0 {
		t.Fatal("polled a share that was never created")
	}
}

func TestPollTimeoutSurfacesTimeout(t *testing.T) {
	db := newLibrary(t, alice)
	addBook(t, db, "b1", alice.UID, "")
	fake := &scriptedRelay{shareID: "s1", results: []result{{err: notFound}}}
	s := NewSession(fake, db, WithPolling(PollConfig{Interval: time.Millisecond, MaxAttempts: 3}))
	s.Start(models.ActionLoan, "b1")
	st := finish(t, s)
	if st.Phase != PhaseError || st.Message != "timeout" {
		t.Fatalf("got %s %q", st.Phase, st.Message)
	}
	if b, _ := db.BookByUID(context.Background(), "b1"); b.IsLent() {
		t.Fatal("book lent although the transaction failed")
	}
}

func TestResetCancelsPolling(t *testing.T) {
	db := newLibrary(t, alice)
	addBook(t, db, "b1", alice.UID, "")
	fake := &scriptedRelay{shareID: "s1", results: []result{{tx: pending()}}}
	s := NewSession(fake, db, fast)

	s.Start(models.ActionLoan, "b1")
	waitFor(t, s, PhaseWaitingForScan)
	s.Reset()
	if st := finish(t, s); st.Phase != PhaseIdle {
		t.Fatalf("after reset: %s", st.Phase)
	}

	polls := fake.pollCount()
	time.Sleep(30 * time.Millisecond)
	if fake.pollCount() != polls {
		t.Fatalf("polling continued after reset: %d -> %d", polls, fake.pollCount())
	}
}

func TestStartReplacesRunningSession(t *testing.T) {
	db := newLibrary(t, alice)
	addBook(t, db, "b1", alice.UID, "")
	addBook(t, db, "b2", alice.UID, "")
	fake := &scriptedRelay{shareID: "s1", results: []result{{tx: pending()}}}
	s := NewSession(fake, db, fast)

	s.Start(models.ActionLoan, "b1")
	waitFor(t, s, PhaseWaitingForScan)
	s.Start(models.ActionLoan, "b2")
	st := waitFor(t, s, PhaseWaitingForScan)
	if st.BookUID != "b2" {
		t.Fatalf("state belongs to %q", st.BookUID)
	}
	s.Close()
}

func TestAcceptorFillsMissingBorrower(t *testing.T) {
	db := newLibrary(t, bob)
	rec := pending()
	rec.Book.Title = "Dune"
	s := NewSession(&scriptedRelay{accept: result{tx: rec}}, db, fast)
	s.Accept(" s1 ")
	st := finish(t, s)
	if st.Phase != PhaseSuccess || st.Record.Borrower == nil || st.Record.Borrower.UID != bob.UID {
		t.Fatalf("got %s %q %+v", st.Phase, st.Message, st.Record)
	}
	if b, _ := db.BookByUID(context.Background(), "b1"); b == nil || !b.IsBorrowedBy(bob.UID) {
		t.Fatalf("borrowed book: %+v", b)
	}
}

func TestAcceptorRelayRejection(t *testing.T) {
	db := newLibrary(t, bob)
	s := NewSession(&scriptedRelay{accept: result{err: &service.RelayError{Code: 409, Body: "taken"}}}, db, fast)
	s.Accept("s1")
	st := finish(t, s)
	if st.Phase != PhaseError || st.Message != "relay returned 409: taken" {
		t.Fatalf("got %s %q", st.Phase, st.Message)
	}
	if books, _ := db.UserBooks(context.Background(), bob.UID); len(books) != 0 {
		t.Fatalf("library touched on rejection: %+v", books)
	}
}

type brokenLibrary struct {
	*store.SQLite
}

func (brokenLibrary) UpsertBook(context.Context, *models.Book) error {
	return errors.New("disk full")
}

func TestReconcileFailureIsReported(t *testing.T) {
	db := newLibrary(t, bob)
	s := NewSession(&scriptedRelay{accept: result{tx: accepted()}}, brokenLibrary{db}, fast)
	s.Accept("s1")
	st := finish(t, s)
	var re *ReconcileError
	if st.Phase != PhaseError || !errors.As(st.Err, &re) {
		t.Fatalf("got %s %v", st.Phase, st.Err)
	}
}

type receipts struct {
	mu   sync.Mutex
	sent []string
}

func (r *receipts) SendReceipt(_ context.Context, tx *models.Transaction, self models.TransactionUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, self.UID+":"+tx.ShareID)
	return nil
}

func TestObserverAndNotifier(t *testing.T) {
	db := newLibrary(t, bob)
	var (
		mu     sync.Mutex
		phases []Phase
	)
	rcpt := &receipts{}
	s := NewSession(&scriptedRelay{accept: result{tx: accepted()}}, db, fast,
		WithNotifier(rcpt),
		WithObserver(func(st State) {
			mu.Lock()
			phases = append(phases, st.Phase)
			mu.Unlock()
		}))
	s.Accept("s1")
	finish(t, s)

	mu.Lock()
	defer mu.Unlock()
	want := []Phase{PhaseConfirming, PhaseConfirming, PhaseSuccess}
	if len(phases) != len(want) {
		t.Fatalf("phases: %v", phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases: %v", phases)
		}
	}
	if len(rcpt.sent) != 1 || rcpt.sent[0] != "bob:s1" {
		t.Fatalf("receipts: %v", rcpt.sent)
	}
}

func TestAuthorize(t *testing.T) {
	lent := &models.Book{UID: "b", OwnerUUID: "alice"}
	lent.LendTo("bob")
	if err := Authorize(lent, alice, models.Action("SELL")); err == nil || err.Error() != ReasonUnknownAction {
		t.Fatalf("unknown action: %v", err)
	}
	if err := Authorize(lent, alice, models.ActionReturn); err != nil {
		t.Fatalf("return of lent book: %v", err)
	}
}
