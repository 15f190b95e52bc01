package main

import (
	"context"
	"errors"
	"strings"

	chatsync "github.com/NeboLoop/chatsync-go-sdk"
)

// chatClient is the part of chatsync.Client the command loop drives.
type chatClient interface {
	Send(content string) error
	Edit(messageID, content string) error
	Delete(messageID string) error
	Select(ctx context.Context, conversationID string) error
}

const helpText = `commands:
  <text>              send a message
  /edit <id> <text>   edit one of your messages
  /delete <id>        delete one of your messages
  /switch <id>        open another conversation ("" to close)
  /list               redraw the conversation
  /help               this text
  /quit               exit`

// handleLine runs one input line. It reports whether the user asked to quit.
func handleLine(ctx context.Context, client chatClient, out *view, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		report(out, client.Send(line))
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		out.Infof("%s", helpText)
	case "/list":
		out.List()
	case "/switch":
		report(out, client.Select(ctx, strings.Trim(rest, `"`)))
	case "/edit":
		id, content, ok := strings.Cut(rest, " ")
		if !ok || id == "" {
			out.Errorf("usage: /edit <id> <text>")
			return false
		}
		report(out, client.Edit(id, content))
	case "/delete":
		if rest == "" {
			out.Errorf("usage: /delete <id>")
			return false
		}
		err := client.Delete(rest)
		if errors.Is(err, chatsync.ErrDeleteCancelled) {
			out.Infof("delete cancelled")
			return false
		}
		report(out, err)
	default:
		out.Errorf("unknown command %s (try /help)", cmd)
	}
	return false
}

func report(out *view, err error) {
	if err != nil {
		out.Errorf("%v", err)
	}
}
