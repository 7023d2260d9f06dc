package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/mberti/spesa/internal/docext"
	"github.com/mberti/spesa/internal/expense"
	"github.com/mberti/spesa/internal/mail"
	"github.com/mberti/spesa/internal/scanning"
	"github.com/mberti/spesa/internal/server"
	"github.com/mberti/spesa/internal/slack"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// .env is optional, flags and SPESA_* env vars win over it
	_ = godotenv.Load()

	fs := ff.NewFlagSet("spesa")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "spesa.db", "Database file path")
		storagePath = fs.StringLong("storage", "./proofs", "Proof storage directory")
		slackToken  = fs.StringLong("slack-token", "", "Slack bot token")
		scannerType = fs.StringLong("scanner", "off", "Ticket scanner fallback: 'off', 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name")
		smtpHost    = fs.StringLong("smtp-host", "", "SMTP host for verification mail (empty disables)")
		smtpPort    = fs.IntLong("smtp-port", 587, "SMTP port")
		smtpUser    = fs.StringLong("smtp-user", "", "SMTP username")
		smtpPass    = fs.StringLong("smtp-pass", "", "SMTP password")
		smtpFrom    = fs.StringLong("smtp-from", "", "Sender address for outbound mail")
		mailDir     = fs.StringLong("mail-dir", "", "Inbound mail drop directory (empty disables polling)")
		mailPoll    = fs.DurationLong("mail-poll", time.Minute, "Inbound mail poll interval")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPESA"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *slackToken == "" {
		*slackToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if *slackToken == "" {
		slog.Error("Slack token is required. Set --slack-token flag or SLACK_BOT_TOKEN environment variable")
		os.Exit(1)
	}

	slog.Info("Initializing database...")
	db, err := expense.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var scanner scanning.Scanner
	switch *scannerType {
	case "off":
		// unreadable tickets are rejected instead of scanned
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "off, gemini or ollama")
		os.Exit(1)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	slog.Info("Initializing storage...")
	store, err := expense.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	chat := slack.New(*slackToken)
	service := expense.NewService(db, store, chat, docext.NewExtractor(), scanner)

	var sender mail.Sender
	if *smtpHost != "" {
		sender = mail.NewSMTPSender(*smtpHost, *smtpPort, *smtpUser, *smtpPass, *smtpFrom)
	}

	srv := server.New(service, chat, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *mailDir != "" {
		source, err := mail.NewDirSource(*mailDir)
		if err != nil {
			slog.Error("Failed to initialize mail source", "error", err)
			os.Exit(1)
		}
		ingestor := mail.NewIngestor(service, srv)
		poller := mail.NewPoller(source, ingestor, *mailPoll)
		go poller.Run(ctx)
		slog.Info("Mail polling enabled", "dir", *mailDir, "interval", *mailPoll)
	}

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
