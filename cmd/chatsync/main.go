// Command chatsync is a terminal chat client: it opens one conversation,
// keeps its message list in sync with the gateway, and reads commands from
// stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	chatsync "github.com/NeboLoop/chatsync-go-sdk"
	"github.com/NeboLoop/chatsync-go-sdk/internal/config"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	endpoint := pflag.String("endpoint", "", "gateway WebSocket URL")
	apiEndpoint := pflag.String("api", "", "REST API base URL (derived from --endpoint if empty)")
	token := pflag.String("token", "", "bearer token (default $CHATSYNC_TOKEN)")
	conversation := pflag.String("conversation", "", "conversation to open")
	user := pflag.String("user", "", "local user id (default: token subject)")
	logLevel := pflag.String("log-level", "", "debug, info, warn or error")
	pflag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fail(err)
		}
		cfg = loaded
	}

	if env := os.Getenv("CHATSYNC_TOKEN"); env != "" && cfg.Auth.Token == "" {
		cfg.Auth.Token = env
	}
	override(&cfg.Gateway.Endpoint, *endpoint)
	override(&cfg.Gateway.APIEndpoint, *apiEndpoint)
	override(&cfg.Auth.Token, *token)
	override(&cfg.Auth.UserID, *user)
	override(&cfg.Conversation, *conversation)
	override(&cfg.Logging.Level, *logLevel)

	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	if err := run(cfg); err != nil {
		fail(err)
	}
}

func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
	os.Exit(1)
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := setupLogger(cfg.Logging.Level)
	out := newView(os.Stdout)
	lines := readLines(ctx, os.Stdin)

	client, err := chatsync.New(chatsync.Config{
		Endpoint:         cfg.Gateway.Endpoint,
		APIEndpoint:      cfg.Gateway.APIEndpoint,
		UserID:           cfg.Auth.UserID,
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
		HistoryPageSize:  cfg.History.PageSize,
		HistoryLimit:     cfg.History.Limit,
		SendBuffer:       cfg.Gateway.SendBuffer,
		ConfirmDelete: func(m chatsync.Message) bool {
			// Delete runs on the command loop, so the answer is the next line.
			out.Prompt(fmt.Sprintf("delete %q? [y/N] ", m.Content))
			select {
			case answer, ok := <-lines:
				answer = strings.ToLower(strings.TrimSpace(answer))
				return ok && (answer == "y" || answer == "yes")
			case <-ctx.Done():
				return false
			}
		},
		Logger: logger,
	}, chatsync.Callbacks{
		OnChange:       out.Messages,
		OnConnectivity: out.Connectivity,
		OnHistoryError: func(conv string, err error) { out.Errorf("history for %s: %v", conv, err) },
		OnPresence:     out.Presence,
		OnServerError:  func(err error) { out.Errorf("%v", err) },
	})
	if err != nil {
		return err
	}
	defer client.Close()
	out.SetSelf(client.Self)

	out.Banner(cfg.Gateway.Endpoint)
	if err := client.SetToken(ctx, cfg.Auth.Token); err != nil {
		out.Errorf("%v", err)
	}
	if cfg.Conversation != "" {
		if err := client.Select(ctx, cfg.Conversation); err != nil {
			out.Errorf("%v", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, client, out, line); quit {
				return nil
			}
		}
	}
}

// readLines feeds stdin lines to a channel until EOF or cancellation.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
