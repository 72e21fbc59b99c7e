package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/electromart/chatlink"
	"github.com/electromart/chatlink/chat"
	"github.com/electromart/chatlink/pkg/correlate"
	"github.com/electromart/chatlink/pkg/transport"
)

var replCommands = []string{"/cancel", "/cancel-all", "/clear", "/status", "/help", "/quit"}

func runREPL(client *chatlink.Client) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) (out []string) {
		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, strings.ToLower(l)) {
				out = append(out, cmd)
			}
		}
		return out
	})

	historyPath := replHistoryPath()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(historyPath); err == nil {
				_, _ = line.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	p := newPrinter(os.Stdout)
	fmt.Println("Type a message, or /help for commands.")

	for {
		p.flush(client)

		input, err := line.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := runCommand(client, p, input); quit {
				return nil
			}
			continue
		}

		if _, err := client.Submit(input); err != nil {
			fmt.Printf("! %v\n", err)
			continue
		}
		p.waitForReplies(client, 15*time.Second)
	}
}

func runCommand(client *chatlink.Client, p *printer, input string) (quit bool) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`  /cancel [#N]   cancel the oldest pending message, or the one numbered N
  /cancel-all    cancel every pending message
  /clear         wipe the conversation and its stored history
  /status        show connection and queue state
  /quit          exit`)

	case "/status":
		printStatus(client)

	case "/cancel":
		id, err := resolveCancelTarget(client, fields)
		if err != nil {
			fmt.Printf("! %v\n", err)
			break
		}
		if err := client.CancelOne(id); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/cancel-all":
		if err := client.CancelAll(); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/clear":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.ClearHistory(ctx)
		cancel()
		if err != nil {
			fmt.Printf("! %v\n", err)
			break
		}
		p.reset()
		fmt.Println("-- conversation cleared")

	default:
		fmt.Printf("! unknown command %s (try /help)\n", fields[0])
	}
	return false
}

// resolveCancelTarget maps "/cancel" to the oldest pending message and
// "/cancel #N" to the pending message carrying correlation number N.
func resolveCancelTarget(client *chatlink.Client, fields []string) (string, error) {
	snap := client.Snapshot()
	if len(snap.Pending) == 0 {
		return "", errors.New("nothing is pending")
	}
	if len(fields) < 2 {
		return snap.Pending[0].MessageID, nil
	}

	n, err := strconv.Atoi(strings.TrimPrefix(fields[1], "#"))
	if err != nil {
		return "", fmt.Errorf("bad message number %q", fields[1])
	}
	corr := client.Correlation()
	for _, pe := range snap.Pending {
		if corr[chat.KeyForID(pe.MessageID)].Number == n {
			return pe.MessageID, nil
		}
	}
	return "", fmt.Errorf("no pending message numbered %d", n)
}

func printStatus(client *chatlink.Client) {
	snap := client.Snapshot()
	fmt.Printf("  connection:  %s", snap.State)
	if snap.State == transport.StateReconnecting {
		fmt.Printf(" (attempt %d)", snap.ReconnectAttempt)
	}
	fmt.Println()
	if snap.SessionID != "" {
		fmt.Printf("  session:     %s\n", snap.SessionID)
	}
	if snap.CurrentAgent != "" {
		fmt.Printf("  agent:       %s\n", snap.CurrentAgent)
	}
	fmt.Printf("  pending:     %d\n", len(snap.Pending))
	fmt.Printf("  offline:     %d queued\n", snap.OfflineQueueLen)
	stats := client.GuardStats()
	fmt.Printf("  guard:       %d sent, %d duplicates, %d throttled\n",
		stats.Allowed, stats.Duplicates, stats.Throttled)
	if snap.LastError != "" {
		fmt.Printf("  last error:  %s\n", snap.LastError)
		client.ClearError()
	}
}

func replHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".chatlink")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

// printer renders log entries once each, tagging correlated messages
// with their number in a cyclic ANSI color.
type printer struct {
	out  io.Writer
	seen map[chat.MessageKey]bool
}

var palette = []string{
	"\033[36m", "\033[32m", "\033[33m", "\033[35m",
	"\033[34m", "\033[31m", "\033[96m", "\033[92m",
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: make(map[chat.MessageKey]bool)}
}

func (p *printer) reset() {
	p.seen = make(map[chat.MessageKey]bool)
}

func (p *printer) flush(client *chatlink.Client) {
	snap := client.Snapshot()
	corr := client.Correlation()
	for _, m := range snap.Messages {
		if p.seen[m.Key()] {
			continue
		}
		p.seen[m.Key()] = true
		p.print(m, corr[m.Key()])
	}
}

func (p *printer) print(m chat.Message, rec correlate.Record) {
	tag := ""
	if rec.Number > 0 {
		tag = colorize(fmt.Sprintf("[#%d] ", rec.Number), rec.Color)
	}
	switch {
	case m.Agent == chat.SystemAgent:
		fmt.Fprintf(p.out, "-- %s\n", m.Content)
	case m.Role == chat.RoleUser:
		fmt.Fprintf(p.out, "%syou: %s\n", tag, m.Content)
	default:
		agent := m.Agent
		if agent == "" {
			agent = "agent"
		}
		fmt.Fprintf(p.out, "%s%s: %s\n", tag, agent, m.Content)
	}
}

func colorize(s string, color int) string {
	return palette[color%len(palette)] + s + "\033[0m"
}

// waitForReplies prints messages as they arrive until every pending
// entry resolves or the wait budget runs out. While disconnected it
// returns immediately; the queued sends will flush on reconnect.
func (p *printer) waitForReplies(client *chatlink.Client, budget time.Duration) {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		p.flush(client)
		snap := client.Snapshot()
		if len(snap.Pending) == 0 {
			p.flush(client)
			return
		}
		if snap.State != transport.StateConnected {
			return
		}
		time.Sleep(150 * time.Millisecond)
	}
}
