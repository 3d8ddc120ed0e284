package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/api"
	"github.com/erazemk/pujcovna/internal/auth"
	"github.com/erazemk/pujcovna/internal/cache"
	"github.com/erazemk/pujcovna/internal/catalog"
	"github.com/erazemk/pujcovna/internal/config"
	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/events"
	"github.com/erazemk/pujcovna/internal/imaging"
	"github.com/erazemk/pujcovna/internal/loans"
	"github.com/erazemk/pujcovna/internal/logging"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/roster"
	"github.com/erazemk/pujcovna/internal/scan"
	"github.com/erazemk/pujcovna/internal/storage"
	"github.com/erazemk/pujcovna/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := parseFlags(cfg, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	log, closeLog, err := logging.New(logging.Config{
		Path:   cfg.Log.Path,
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("fatal", zap.Error(err))
	}
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

// parseFlags applies command-line overrides on top of the environment.
func parseFlags(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("pujcovna", flag.ContinueOnError)

	fs.StringVar(&cfg.Database.Path, "db", cfg.Database.Path, "")
	fs.StringVar(&cfg.Database.Path, "d", cfg.Database.Path, "")

	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "")
	fs.StringVar(&cfg.Server.Addr, "a", cfg.Server.Addr, "")

	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")

	fs.StringVar(&cfg.Log.Path, "log", cfg.Log.Path, "")
	fs.StringVar(&cfg.Log.Path, "l", cfg.Log.Path, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: pujcovna [flags]

Flags:
  -d, -db <path>          SQLite database path (default: pujcovna.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Every setting can also be given as a PUJCOVNA_* environment variable or in
a .env file, e.g. PUJCOVNA_DATABASE_DRIVER=postgres.
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		return fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return nil
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	password, err := ensureAdmin(ctx, database, cfg.AdminUser)
	if err != nil {
		return err
	}
	if password != "" {
		printInitResult(cfg.AdminUser, password)
		fmt.Println()
	}

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("getting JWT secret: %w", err)
	}

	backend, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	loader := cache.NewLoader(backend, cfg.Cache.TTL, log)

	publisher, err := openPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	files := storage.NewDBStorage(database, cfg.Server.PublicURL)
	images := imaging.NewNormalizer(imaging.Options{MaxDimension: cfg.Service.ImageMaxDim})
	timeout := cfg.Service.OpTimeout

	catalogSvc := catalog.New(database, loader, publisher, log, timeout)
	rosterSvc := roster.New(database, loader, files, images, publisher, log, timeout)
	loanSvc := loans.New(loans.Config{
		DB:       database,
		Cache:    loader,
		Uploader: files,
		Images:   images,
		Events:   publisher,
		Log:      log,
		Timeout:  timeout,
	})

	sessions := scan.NewRegistry(cfg.Service.ScanSessionTTL, cfg.Service.ScanInterval)
	go sessions.Run(ctx, time.Minute)
	desk := scan.NewDesk(sessions, rosterSvc, catalogSvc, loanSvc, log)

	router := api.NewRouter(api.Config{
		DB:          database,
		Issuer:      auth.NewIssuer(jwtSecret, cfg.Service.TokenExpiration),
		Catalog:     catalogSvc,
		Roster:      rosterSvc,
		Loans:       loanSvc,
		Desk:        desk,
		Files:       files,
		Log:         log,
		CORSOrigins: cfg.Server.CORSOrigins,
		MaxUpload:   cfg.Service.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	log.Info("server started", zap.String("addr", cfg.Server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped, closing database")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*db.DB, error) {
	dialect, err := db.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Database.Path
	if dialect == db.Postgres {
		dsn = cfg.Database.URL
	}

	database, err := db.Open(dialect, dsn, db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring database schema: %w", err)
	}

	log.Info("database ready", zap.String("driver", string(dialect)))
	return database, nil
}

// ensureAdmin creates the admin account when there are no operators yet and
// returns its generated password. It returns "" when accounts already exist.
func ensureAdmin(ctx context.Context, database *db.DB, username string) (string, error) {
	users, err := store.ListUsers(ctx, database)
	if err != nil {
		return "", fmt.Errorf("listing users: %w", err)
	}
	if len(users) > 0 {
		return "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	if _, err := store.CreateUser(ctx, database, username, hash, model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

func openCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return c, nil
	case "none":
		return cache.NopCache{}, nil
	default:
		return cache.NewMemoryCache(cfg.Cache.TTL), nil
	}
}

func openPublisher(cfg *config.Config, log *zap.Logger) (events.Publisher, error) {
	if !cfg.KafkaEnabled() {
		return events.Nop{}, nil
	}
	p, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		ClientID: cfg.Kafka.ClientID,
		Retries:  cfg.Kafka.Retries,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to kafka: %w", err)
	}
	return p, nil
}

// printInitResult prints the admin account created on first run to stdout.
func printInitResult(username, password string) {
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
