package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/haadiyeah/realtime-voice-agent/agent"
	"github.com/haadiyeah/realtime-voice-agent/audiodev"
	"github.com/haadiyeah/realtime-voice-agent/config"
	"github.com/haadiyeah/realtime-voice-agent/eventlog"
	"github.com/haadiyeah/realtime-voice-agent/guardrail"
	"github.com/haadiyeah/realtime-voice-agent/realtime"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	model := flag.String("model", "", "realtime model (overrides config)")
	voice := flag.String("voice", "", "assistant voice (overrides config)")
	instructions := flag.String("instructions", "", "system instructions (overrides config)")
	blocked := flag.String("blocked-words", "", "comma-separated guardrail keywords")
	logTail := flag.Int("log-tail", 20, "event log entries to print on exit")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))

	// Best effort: a missing .env is fine, the variable may come from the
	// environment.
	_ = godotenv.Load()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *voice != "" {
		cfg.Voice = *voice
	}
	if *instructions != "" {
		cfg.Instructions = *instructions
	}

	guards := guardrail.NewSet()
	if *blocked != "" {
		words := strings.Split(*blocked, ",")
		for i := range words {
			words[i] = strings.TrimSpace(words[i])
		}
		guards.Add(guardrail.Keyword("blocked-words", words...))
	}

	capture, err := audiodev.NewCapture(audiodev.CaptureConfig{})
	if err != nil {
		return err
	}
	defer capture.Close()

	player, err := audiodev.NewPlayer(audiodev.DefaultPlaybackRate)
	if err != nil {
		return err
	}
	defer player.Close()

	session := agent.NewSession(agent.Options{
		Config:     cfg,
		Source:     capture,
		Sink:       player,
		Tokens:     realtime.NewTokenSource(apiKey),
		Log:        eventlog.New(cfg.LogCapacity),
		Guardrails: guards,
		Tools:      agent.DefaultTools(),
		Logger:     slog.Default(),
	})

	slog.Info("starting voice agent", "version", version, "commit", commit, "model", cfg.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Stop()

	// Persist the minted credential for the next run.
	if err := cfg.Save(); err != nil {
		slog.Warn("save config", "error", err)
	}

	fmt.Println("Listening. Type a message and press enter, or Ctrl+C to quit.")
	go readStdin(ctx, session)

	<-ctx.Done()
	fmt.Println()
	printLogTail(session.EventLog(), *logTail)
	return nil
}

// readStdin forwards typed lines as text messages alongside the mic stream.
func readStdin(ctx context.Context, session *agent.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := session.SendText(line); err != nil {
			slog.Warn("send text", "error", err)
		}
	}
}

func printLogTail(log *eventlog.Log, n int) {
	entries := log.Entries()
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) == 0 {
		return
	}

	fmt.Printf("last %d events:\n", len(entries))
	for _, e := range entries {
		arrow := "->"
		if e.Direction == eventlog.DirectionReceived {
			arrow = "<-"
		}
		fmt.Printf("  %s %s %v\n", e.Timestamp.Format("15:04:05.000"), arrow, e.Event["type"])
	}
}
