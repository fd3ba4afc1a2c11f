package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-wallet/internal/advisor"
	"github.com/zombor/receipt-wallet/internal/capture"
	"github.com/zombor/receipt-wallet/internal/kv"
	"github.com/zombor/receipt-wallet/internal/pipeline"
	"github.com/zombor/receipt-wallet/internal/receipt"
	"github.com/zombor/receipt-wallet/internal/scanning"
	"github.com/zombor/receipt-wallet/internal/server"
	"github.com/zombor/receipt-wallet/internal/session"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	flags := ff.NewFlagSet("receipt-wallet")
	var (
		port             = flags.IntLong("port", 8080, "HTTP server port")
		dbPath           = flags.StringLong("db", "receipt-wallet.db", "Database file path")
		dbDriver         = flags.StringLong("db-driver", "bolt", "Database driver: 'bolt' or 'sqlite'")
		imagesPath       = flags.StringLong("images", "./images", "Directory for captured receipt photos")
		extractorType    = flags.StringLong("extractor", "gemini", "Extraction service: 'gemini' or 'http'")
		geminiKey        = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel      = flags.StringLong("gemini-model", "gemini-2.0-flash", "Google Gemini model name")
		extractURL       = flags.StringLong("extract-url", "", "Extraction endpoint URL for the 'http' extractor")
		extractKey       = flags.StringLong("extract-key", "", "Bearer token for the 'http' extractor (optional)")
		extractTimeout   = flags.DurationLong("extract-timeout", scanning.DefaultTimeout, "Timeout for a single extraction call")
		advisorType      = flags.StringLong("advisor", "gemini", "Financial advisor model: 'gemini', 'gigachat' or 'none'")
		advisorModel     = flags.StringLong("advisor-model", "", "Advisor model name (provider default when empty)")
		gigachatKey      = flags.StringLong("gigachat-key", "", "GigaChat authorization key")
		gigachatScope    = flags.StringLong("gigachat-scope", "GIGACHAT_API_PERS", "GigaChat API scope")
		gigachatInsecure = flags.BoolLong("gigachat-insecure", "Skip TLS verification for GigaChat")
		oauthClientID    = flags.StringLong("oauth-client-id", "", "Google OAuth client ID (sign-in disabled when empty)")
		oauthSecret      = flags.StringLong("oauth-client-secret", "", "Google OAuth client secret")
		oauthRedirect    = flags.StringLong("oauth-redirect-url", "", "Google OAuth redirect URL")
		cameraPermission = flags.StringLong("camera-permission", "granted", "Camera permission: 'granted' or 'denied'")
		authUser         = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass         = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel         = flags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion      = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_WALLET"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	gin.SetMode(gin.ReleaseMode)

	// Initialize database
	slog.Info("Initializing database...", "driver", *dbDriver, "path", *dbPath)
	db, err := kv.Open(*dbDriver, *dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Get Gemini API key from flag or environment
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	// Initialize extractor based on type
	var extractor scanning.Extractor
	switch *extractorType {
	case "gemini":
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(apiKey, *geminiModel, *extractTimeout)
	case "http":
		slog.Info("Initializing HTTP extractor...", "url", *extractURL)
		extractor, err = scanning.NewHTTP(*extractURL, *extractKey, *extractTimeout)
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or http")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize extractor", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	// Initialize advisor
	var chatter advisor.Chatter
	switch *advisorType {
	case "gemini":
		if apiKey == "" {
			slog.Warn("No Gemini API key, financial advisor disabled")
			break
		}
		chatter, err = advisor.NewGemini(apiKey, *advisorModel)
	case "gigachat":
		chatter, err = advisor.NewGigaChat(context.Background(), advisor.GigaChatConfig{
			APIKey:             *gigachatKey,
			Scope:              *gigachatScope,
			Model:              *advisorModel,
			InsecureSkipVerify: *gigachatInsecure,
		})
		if *gigachatInsecure {
			slog.Warn("GigaChat TLS certificate verification is disabled")
		}
	case "none":
	default:
		slog.Error("Invalid advisor type", "type", *advisorType, "valid", "gemini, gigachat or none")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize advisor", "error", err)
		os.Exit(1)
	}
	financialAdvisor := advisor.New(chatter)
	defer financialAdvisor.Close()

	// Initialize sign-in
	var provider session.Provider
	if *oauthClientID != "" {
		provider, err = session.NewGoogleProvider(*oauthClientID, *oauthSecret, *oauthRedirect)
		if err != nil {
			slog.Error("Failed to initialize sign-in", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("Sign-in disabled, no OAuth client ID")
	}

	// Initialize image storage
	slog.Info("Initializing storage...", "path", *imagesPath)
	images, err := capture.NewLocalStorage(*imagesPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	receipts := receipt.NewStore(db)
	if list, err := receipts.LoadAll(); err != nil {
		slog.Error("Failed to load receipts", "error", err)
		os.Exit(1)
	} else {
		slog.Info("Loaded receipts", "count", len(list))
	}

	permissions := capture.StaticPermissions(*cameraPermission == "granted")
	orchestrator := pipeline.NewOrchestrator(capture.NewAcquirer(images, permissions), images, extractor, receipts)

	// Initialize server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(server.Deps{
		Receipts: receipts,
		Pipeline: orchestrator,
		Images:   images,
		Advisor:  financialAdvisor,
		Session:  session.New(db, provider),
	}, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
