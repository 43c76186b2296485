package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/relay"
	"github.com/kevinaaaquil/sharemybook/service"
	"github.com/kevinaaaquil/sharemybook/store"
	"github.com/kevinaaaquil/sharemybook/transaction"
)

func runScan(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := scanCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScanCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--type", "ISBN", "978-0-441-17271-9"}, "isbn 9780441172719\n"},
		{[]string{"-t", "product", "9780441172719"}, "isbn 9780441172719\n"},
		{[]string{`{"shareId":"s-42"}`}, "share s-42\n"},
		{[]string{"--type", "QR", "s1"}, "share s1\n"},
	}
	for _, tt := range tests {
		got, err := runScan(t, tt.args...)
		if err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if got != tt.want {
			t.Fatalf("%v: got %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestScanCommandErrors(t *testing.T) {
	if _, err := runScan(t, "--type", "AZTEC", "x"); err == nil {
		t.Fatal("unknown format accepted")
	}
	if _, err := runScan(t, "--type", "PRODUCT", "123"); err == nil {
		t.Fatal("short product code accepted")
	}
	if _, err := runScan(t); err == nil {
		t.Fatal("missing value accepted")
	}
}

func newDevice(t *testing.T, profile *models.User) (*transaction.Session, *store.SQLite) {
	t.Helper()
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close(context.Background()) })
	if profile != nil {
		if err := db.SaveCurrentUser(context.Background(), profile); err != nil {
			t.Fatalf("save profile: %v", err)
		}
	}

	srv := httptest.NewServer(relay.NewHandler(relay.NewMemoryStore(), time.Minute).Router())
	t.Cleanup(srv.Close)
	s := transaction.NewSession(service.NewRelayClient(srv.URL, time.Second), db,
		transaction.WithPolling(transaction.PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 1000}))
	t.Cleanup(s.Close)
	return s, db
}

func TestDriveReturnsErrorMessage(t *testing.T) {
	s, _ := newDevice(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := drive(ctx, s, func(s *transaction.Session) { s.Start(models.ActionLoan, "b1") })
	if err == nil || err.Error() != "profile required" {
		t.Fatalf("got %v", err)
	}
}

func TestDriveCancelledResetsSession(t *testing.T) {
	owner := &models.User{UID: "alice", FullName: "Alice", Tel: "0600000001", Email: "alice@example.com"}
	s, db := newDevice(t, owner)
	book := &models.Book{UID: "b1", ISBN: "9780441172719", Title: "Dune", Authors: "Frank Herbert", OwnerUUID: owner.UID}
	if err := db.UpsertBook(context.Background(), book); err != nil {
		t.Fatalf("add book: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := drive(ctx, s, func(s *transaction.Session) { s.Start(models.ActionLoan, "b1") })
	if err == nil || !strings.HasPrefix(err.Error(), "cancelled in ") {
		t.Fatalf("got %v", err)
	}
	if st := s.State(); st.Phase != transaction.PhaseIdle {
		t.Fatalf("session left in %s", st.Phase)
	}
	if b, _ := db.BookByUID(context.Background(), "b1"); b.IsLent() {
		t.Fatal("book lent by a cancelled run")
	}
}
