package transaction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/scan"
)

// Relay is the share relay as seen by a session.
type Relay interface {
	ResultFetcher
	InitTransaction(ctx context.Context, action models.Action, book models.TransactionBook, owner models.TransactionUser) (string, error)
	AcceptTransaction(ctx context.Context, shareID string, borrower models.TransactionUser) (*models.Transaction, error)
}

// Library is the local store a session reads the profile and books from.
type Library interface {
	Records
	CurrentUser(ctx context.Context) (*models.User, error)
}

// Notifier is told about every successful transaction, after reconciliation.
type Notifier interface {
	SendReceipt(ctx context.Context, tx *models.Transaction, self models.TransactionUser) error
}

type Option func(*Session)

func WithPolling(cfg PollConfig) Option {
	return func(s *Session) { s.poll = cfg.withDefaults() }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithObserver registers fn to receive every state change in order. fn runs
// with the session locked and must not call back into the session.
func WithObserver(fn func(State)) Option {
	return func(s *Session) { s.observer = fn }
}

// Session runs at most one transaction at a time for this device. Starting a
// new one, or resetting, cancels whatever is in flight.
type Session struct {
	relay      Relay
	lib        Library
	reconciler Reconciler
	poll       PollConfig
	notifier   Notifier
	observer   func(State)

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(relay Relay, lib Library, opts ...Option) *Session {
	s := &Session{
		relay:      relay,
		lib:        lib,
		reconciler: Reconciler{Records: lib},
		poll:       PollConfig{}.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins lending or returning bookUID. It returns at once; follow
// progress with State, Wait or an observer.
func (s *Session) Start(action models.Action, bookUID string) State {
	ctx, gen, done, st := s.begin(Started{Action: action, BookUID: bookUID})
	go func() {
		defer close(done)
		s.runInitiator(ctx, gen, action, bookUID)
	}()
	return st
}

// Accept confirms the share scanned on this device.
func (s *Session) Accept(shareID string) State {
	shareID = strings.TrimSpace(shareID)
	ctx, gen, done, st := s.begin(Scanned{ShareID: shareID})
	go func() {
		defer close(done)
		s.runAcceptor(ctx, gen, shareID)
	}()
	return st
}

// Reset cancels any run in flight and returns to Idle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.set(State{})
}

// Wait blocks until the current run has finished or ctx is done.
func (s *Session) Wait(ctx context.Context) (State, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return s.State(), nil
	}
	select {
	case <-done:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Close cancels the run in flight and waits for it to stop. The state is kept.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) begin(e Event) (context.Context, uint64, chan struct{}, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	next, _ := Transition(s.state, e)
	s.set(next)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	return ctx, s.gen, s.done, next
}

// set stores st and notifies the observer. Callers hold s.mu.
func (s *Session) set(st State) {
	s.state = st
	if s.observer != nil {
		s.observer(st)
	}
}

// apply feeds e to the state machine if gen is still the current run.
func (s *Session) apply(gen uint64, e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	next, ok := Transition(s.state, e)
	if !ok {
		return false
	}
	s.set(next)
	return true
}

func (s *Session) fail(gen uint64, side Side, action models.Action, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if s.apply(gen, Failed{Err: err}) {
		transactionsTotal.WithLabelValues(side.String(), string(action), "error").Inc()
	}
}

func (s *Session) currentUser(ctx context.Context) (*models.User, error) {
	user, err := s.lib.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if user == nil {
		return nil, invalid(ReasonProfileRequired)
	}
	if !user.IsValid() {
		return nil, invalid(ReasonProfileIncomplete)
	}
	return user, nil
}

// Authorize checks that user may start action on book.
func Authorize(book *models.Book, user *models.User, action models.Action) error {
	if !action.Valid() {
		return invalid(ReasonUnknownAction)
	}
	if book == nil {
		return invalid(ReasonBookNotFound)
	}
	if !book.IsOwnedBy(user.UID) {
		return invalid(ReasonNotOwner)
	}
	if action == models.ActionLoan && book.IsLent() {
		return invalid(ReasonAlreadyLent)
	}
	if action == models.ActionReturn && !book.IsLent() {
		return invalid(ReasonNotLent)
	}
	return nil
}

func (s *Session) runInitiator(ctx context.Context, gen uint64, action models.Action, bookUID string) {
	user, err := s.currentUser(ctx)
	if err != nil {
		s.fail(gen, SideInitiator, action, err)
		return
	}
	book, err := s.lib.BookByUID(ctx, bookUID)
	if err != nil {
		s.fail(gen, SideInitiator, action, fmt.Errorf("load book: %w", err))
		return
	}
	if err := Authorize(book, user, action); err != nil {
		s.fail(gen, SideInitiator, action, err)
		return
	}

	shareID, err := s.relay.InitTransaction(ctx, action, book.Snapshot(), user.Ref())
	if err == nil && shareID == "" {
		err = ErrEmptyShare
	}
	if err != nil {
		s.fail(gen, SideInitiator, action, err)
		return
	}
	if !s.apply(gen, ShareCreated{ShareID: shareID, QRPayload: scan.EncodePayload(shareID)}) {
		return
	}
	log.Printf("transaction %s: %s of %s waiting for scan", shareID, action, bookUID)

	rec, err := WaitForAcceptance(ctx, s.relay, shareID, s.poll)
	if err != nil {
		s.fail(gen, SideInitiator, action, err)
		return
	}
	rec.ShareID = shareID
	s.finish(ctx, gen, SideInitiator, user, bookUID, rec)
}

func (s *Session) runAcceptor(ctx context.Context, gen uint64, shareID string) {
	if shareID == "" {
		s.fail(gen, SideAcceptor, "", invalid(ReasonShareRequired))
		return
	}
	user, err := s.currentUser(ctx)
	if err != nil {
		s.fail(gen, SideAcceptor, "", err)
		return
	}
	rec, err := s.relay.AcceptTransaction(ctx, shareID, user.Ref())
	if err != nil {
		s.fail(gen, SideAcceptor, "", err)
		return
	}
	self := user.Ref()
	switch {
	case rec.Borrower == nil:
		rec.Borrower = &self
	case rec.Borrower.UID != user.UID:
		log.Printf("transaction %s: relay names borrower %s, recording %s", shareID, rec.Borrower.UID, user.UID)
	}
	rec.ShareID = shareID
	s.finish(ctx, gen, SideAcceptor, user, rec.Book.UID, rec)
}

// finish reconciles exactly once per confirmed record: only the run whose
// Confirmed event is accepted gets to write. Writes are not cancelled by a
// later reset, since the relay has already recorded the outcome.
func (s *Session) finish(ctx context.Context, gen uint64, side Side, user *models.User, bookUID string, rec *models.Transaction) {
	if !s.apply(gen, Confirmed{Record: rec}) {
		return
	}
	wctx := context.WithoutCancel(ctx)
	if err := s.reconciler.Apply(wctx, side, user, bookUID, rec); err != nil {
		log.Printf("transaction %s: %v", rec.ShareID, err)
		s.fail(gen, side, rec.Action, err)
		return
	}
	if s.apply(gen, Reconciled{}) {
		transactionsTotal.WithLabelValues(side.String(), string(rec.Action), "success").Inc()
	}
	log.Printf("transaction %s: %s confirmed as %s", rec.ShareID, rec.Action, side)

	if s.notifier != nil {
		if err := s.notifier.SendReceipt(wctx, rec, user.Ref()); err != nil {
			log.Printf("transaction %s: receipt: %v", rec.ShareID, err)
		}
	}
}
