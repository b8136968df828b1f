package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BeatBard/ccs-pops/internal/api"
	"github.com/BeatBard/ccs-pops/internal/data"
	"github.com/BeatBard/ccs-pops/internal/flow"
	"github.com/BeatBard/ccs-pops/internal/genai"
	"github.com/BeatBard/ccs-pops/internal/intent"
	"github.com/BeatBard/ccs-pops/internal/lockfile"
	"github.com/BeatBard/ccs-pops/internal/messaging"
	"github.com/BeatBard/ccs-pops/internal/scheduler"
	"github.com/BeatBard/ccs-pops/internal/session"
	"github.com/BeatBard/ccs-pops/internal/store"
	"github.com/BeatBard/ccs-pops/internal/twiliowhatsapp"
	"github.com/BeatBard/ccs-pops/internal/util"
	"github.com/BeatBard/ccs-pops/internal/visits"
	"github.com/BeatBard/ccs-pops/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Pocket Coach state data
	DefaultStateDir = "/var/lib/pocketcoach"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "pocketcoach.db"
	// DefaultDataDir is the default directory for CSV reference data
	DefaultDataDir = "data"
	// DefaultDSRName is used when a session has no DSR name on record
	DefaultDSRName = "Nalin Perera"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("Pocket Coach failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Pocket Coach exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	DataDir     string
	OpenAIKey   string
	APIAddr     string
	Transport   string
	DSRName     string
	MorningCron string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	dataDir     *string
	openaiKey   *string
	apiAddr     *string
	transport   *string
	dsrName     *string
	morningCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.GetEnvDefault("POCKETCOACH_STATE_DIR", DefaultStateDir),
		DataDir:     util.GetEnvDefault("POCKETCOACH_DATA_DIR", DefaultDataDir),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		Transport:   util.GetEnvDefault("POCKETCOACH_TRANSPORT", "twilio"),
		DSRName:     util.GetEnvDefault("POCKETCOACH_DSR_NAME", DefaultDSRName),
		MorningCron: util.GetEnvDefault("MORNING_SCHEDULE", scheduler.DefaultMorningCron),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"POCKETCOACH_STATE_DIR", config.StateDir,
		"POCKETCOACH_DATA_DIR", config.DataDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"POCKETCOACH_TRANSPORT", config.Transport,
		"MORNING_SCHEDULE", config.MorningCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:     flag.Bool("numeric-code", util.ParseBoolEnv("POCKETCOACH_NUMERIC_CODE", false), "use numeric login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for Pocket Coach data (overrides $POCKETCOACH_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		dataDir:     flag.String("data-dir", config.DataDir, "directory with CSV reference data (overrides $POCKETCOACH_DATA_DIR)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		transport:   flag.String("transport", config.Transport, "messaging transport: twilio or whatsmeow (overrides $POCKETCOACH_TRANSPORT)"),
		dsrName:     flag.String("dsr-name", config.DSRName, "default DSR name for new sessions (overrides $POCKETCOACH_DSR_NAME)"),
		morningCron: flag.String("morning-cron", config.MorningCron, "cron schedule for the morning prompt (overrides $MORNING_SCHEDULE)"),
	}

	flag.Parse()
	return flags
}

// buildStore constructs the session store from the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildMessagingService constructs the configured transport. The returned
// handler is non-nil only for transports that receive messages via webhook.
func buildMessagingService(flags Flags) (messaging.Service, http.HandlerFunc, error) {
	switch *flags.transport {
	case "whatsmeow":
		var waOpts []whatsapp.Option
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil

	default:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc.WebhookHandler, nil
	}
}

func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, webhook, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	var ai genai.ClientInterface
	if *flags.openaiKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		ai = client
	} else {
		slog.Warn("No OpenAI API key configured, using rule-based classification and static coaching only")
	}

	provider := data.NewCSVProvider(*flags.dataDir)
	sessions := session.NewManager(st)
	tracker := visits.NewTracker(st, provider)
	coach := genai.NewCoach(ai)
	classifier := intent.NewClassifier(ai)
	handlers := flow.NewHandlers(provider, coach, tracker)
	driver := flow.NewDriver(classifier, handlers, sessions, *flags.dsrName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	dispatcher := messaging.NewDispatcher(msgService, driver, st)
	dispatcher.Start(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.morningCron, scheduler.MorningBroadcast(sessions, provider, coach, msgService)); err != nil {
		return err
	}
	slog.Info("Morning prompt scheduled", "cron", *flags.morningCron)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(msgService, sessions, tracker, st, webhook, apiOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
