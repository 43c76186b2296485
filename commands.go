package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kevinaaaquil/sharemybook/config"
	"github.com/kevinaaaquil/sharemybook/handlers"
	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/relay"
	"github.com/kevinaaaquil/sharemybook/scan"
	"github.com/kevinaaaquil/sharemybook/service"
	"github.com/kevinaaaquil/sharemybook/store"
	"github.com/kevinaaaquil/sharemybook/transaction"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Run the share relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var shares relay.Store = relay.NewMemoryStore()
			if cfg.RelayDBSource != "" {
				pg, err := relay.NewPostgresStore(context.Background(), cfg.RelayDBSource)
				if err != nil {
					return fmt.Errorf("unable to connect to database: %w", err)
				}
				defer pg.Close()
				shares = pg
			} else {
				log.Println("RELAY_DB_SOURCE not set; shares are kept in memory")
			}

			h := relay.NewHandler(shares, cfg.RelayTTL)
			ctx, stop := context.WithCancel(context.Background())
			defer stop()
			go h.Sweep(ctx, time.Minute)

			server := &http.Server{Addr: ":" + cfg.RelayPort, Handler: h.Router()}
			return listen(server, stop)
		},
	}
}

func transactionCmd(use string, action models.Action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bookUid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), func(s *transaction.Session) { s.Start(action, args[0]) })
		},
	}
}

func acceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <shareId|payload>",
		Short: "Confirm a share code shown on another device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := scan.Decode(args[0], scan.FormatText)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), func(s *transaction.Session) { s.Accept(res.ShareID) })
		},
	}
}

// runSession opens the local library, runs one transaction and prints its
// progress. Ctrl-C resets the session.
func runSession(parent context.Context, begin func(*transaction.Session)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	db, err := store.Open(parent, cfg.StoreDriver, cfg.SQLitePath, cfg.MongoURI, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	session := newSession(cfg, db, transaction.WithObserver(printState))
	defer session.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return drive(ctx, session, begin)
}

// drive starts a run and waits for it. A run ending in Error returns its
// message; ctx ending first resets the session.
func drive(ctx context.Context, session *transaction.Session, begin func(*transaction.Session)) error {
	begin(session)
	st, err := session.Wait(ctx)
	if err != nil {
		session.Reset()
		return fmt.Errorf("cancelled in %s", st.Phase)
	}
	if st.Phase == transaction.PhaseError {
		return errors.New(st.Message)
	}
	return nil
}

func printState(st transaction.State) {
	switch st.Phase {
	case transaction.PhaseWaitingForScan:
		// Piped output gets the raw payload so another process can relay it.
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Println(st.QRPayload)
			return
		}
		qr, err := service.TerminalQR(st.QRPayload)
		if err != nil {
			log.Println("render qr:", err)
		}
		fmt.Print(qr)
		fmt.Printf("share code %s, waiting for the other device\n", st.ShareID)
	case transaction.PhaseSuccess:
		fmt.Printf("%s of %s complete\n", strings.ToLower(string(st.Action)), st.BookUID)
	case transaction.PhaseError:
		// reported by the command's error
	default:
		fmt.Println(st.Phase)
	}
}

func scanCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "scan <value>",
		Short: "Decode a barcode value the way the device does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := scan.ParseFormat(format)
			if err != nil {
				return err
			}
			res, err := scan.Decode(args[0], f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch res.Kind {
			case scan.KindISBN:
				fmt.Fprintln(out, "isbn", res.ISBN)
			case scan.KindShare:
				fmt.Fprintln(out, "share", res.ShareID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "type", "t", string(scan.FormatText), "barcode format: ISBN, PRODUCT, TEXT or URL")
	return cmd
}

func passcodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passcode",
		Short: "Hash a device passcode for DEVICE_PASSCODE_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("Passcode: ")
			b, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read passcode: %w", err)
			}
			passcode := strings.TrimSpace(string(b))
			if passcode == "" {
				return errors.New("passcode is empty")
			}
			hash, err := handlers.HashPasscode(passcode)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
