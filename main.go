package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kevinaaaquil/sharemybook/config"
	"github.com/kevinaaaquil/sharemybook/handlers"
	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/service"
	"github.com/kevinaaaquil/sharemybook/store"
	"github.com/kevinaaaquil/sharemybook/transaction"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "sharemybook",
		Short:         "Lend and return books between devices by scanning a QR code",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		relayCmd(),
		transactionCmd("lend", models.ActionLoan, "Lend a book and show its share code"),
		transactionCmd("return", models.ActionReturn, "Take a lent book back and show its share code"),
		acceptCmd(),
		scanCmd(),
		passcodeCmd(),
	)
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the device API",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.ValidateEnv()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	ctx := context.Background()
	db, err := store.Open(ctx, cfg.StoreDriver, cfg.SQLitePath, cfg.MongoURI, cfg.DBName)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			log.Println("store close:", err)
		}
	}()

	session := newSession(cfg, db)
	defer session.Close()

	txHandler := &handlers.TransactionsHandler{Session: session, QRExpiry: cfg.QRLinkExpiry}
	if cfg.S3Bucket != "" {
		s3Service, err := service.NewS3Service(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretKey)
		if err != nil {
			return err
		}
		txHandler.S3 = s3Service
	} else {
		log.Println("warning: AWS_S3_BUCKET not set; QR publishing disabled")
	}

	booksHandler := &handlers.BooksHandler{
		DB:      db,
		Catalog: service.NewCatalog(cfg.OpenLibraryURL, cfg.GoogleBooksURL),
	}
	api := &handlers.API{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Auth: &handlers.AuthHandler{
			PasscodeHash: cfg.DevicePasscodeHash,
			JWTSecret:    cfg.JWTSecret,
			DeviceID:     cfg.DeviceID,
		},
		Profile:      &handlers.ProfileHandler{DB: db},
		Books:        booksHandler,
		Transactions: txHandler,
		Scan:         &handlers.ScanHandler{Books: booksHandler, Transactions: txHandler},
	}

	server := &http.Server{Addr: ":" + cfg.Port, Handler: api.Router()}
	return listen(server, nil)
}

// newSession wires the relay client, polling settings and receipt mail.
func newSession(cfg *config.Config, db store.Store, opts ...transaction.Option) *transaction.Session {
	opts = append(opts, transaction.WithPolling(transaction.PollConfig{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
	}))
	mailer := &service.Mailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
	if mailer.Enabled() {
		opts = append(opts, transaction.WithNotifier(mailer))
	}
	return transaction.NewSession(service.NewRelayClient(cfg.RelayURL, cfg.RelayTimeout), db, opts...)
}

// listen serves until SIGINT/SIGTERM, then shuts down. stop, when set, is
// cancelled before shutdown so background loops end with the server.
func listen(server *http.Server, stop context.CancelFunc) error {
	errc := make(chan error, 1)
	go func() {
		log.Println("server listening on " + server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}
	if stop != nil {
		stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("shutdown:", err)
	}
	return nil
}
