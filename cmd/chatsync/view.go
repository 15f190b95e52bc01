package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	chatsync "github.com/NeboLoop/chatsync-go-sdk"
)

var (
	gray   = color.New(color.FgHiBlack)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

// view renders client callbacks to a terminal. Safe for concurrent use.
type view struct {
	mu   sync.Mutex
	w    io.Writer
	self func() string
	conv string
	last []chatsync.Message
}

func newView(w io.Writer) *view {
	return &view{w: w, self: func() string { return "" }}
}

func (v *view) SetSelf(self func() string) {
	v.mu.Lock()
	v.self = self
	v.mu.Unlock()
}

func (v *view) Banner(endpoint string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cyan.Fprintln(v.w, "chatsync")
	gray.Fprintf(v.w, "  gateway %s\n", endpoint)
	gray.Fprintln(v.w, "  type /help for commands")
}

// Messages redraws the whole conversation.
func (v *view) Messages(conversationID string, msgs []chatsync.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conv = conversationID
	v.last = msgs
	v.render()
}

// List redraws the last snapshot.
func (v *view) List() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.render()
}

func (v *view) render() {
	if v.conv == "" {
		gray.Fprintln(v.w, "no conversation open")
		return
	}
	cyan.Fprintf(v.w, "── %s (%d messages) ──\n", v.conv, len(v.last))
	self := v.self()
	for _, m := range v.last {
		name := cyan
		if self != "" && m.SenderID == self {
			name = green
		}
		gray.Fprint(v.w, m.Timestamp.Local().Format("15:04:05")+" ")
		name.Fprint(v.w, m.SenderID)
		fmt.Fprintf(v.w, ": %s", m.Content)
		if m.Edited {
			gray.Fprint(v.w, " (edited)")
		}
		gray.Fprintf(v.w, " [%s]\n", m.ID)
	}
}

func (v *view) Connectivity(state chatsync.ConnState, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c := gray
	switch state {
	case chatsync.StateConnected:
		c = green
	case chatsync.StateDegraded:
		c = yellow
	}
	if err != nil {
		c.Fprintf(v.w, "* %s: %v\n", state, err)
		return
	}
	c.Fprintf(v.w, "* %s\n", state)
}

func (v *view) Presence(p chatsync.Presence, joined bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	verb := "left"
	if joined {
		verb = "joined"
	}
	gray.Fprintf(v.w, "* %s %s\n", p.UserID, verb)
}

func (v *view) Prompt(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	yellow.Fprint(v.w, s)
}

func (v *view) Infof(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	gray.Fprintf(v.w, format+"\n", args...)
}

func (v *view) Errorf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	red.Fprint(v.w, "error: ")
	fmt.Fprintf(v.w, format+"\n", args...)
}
