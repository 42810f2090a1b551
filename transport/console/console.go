package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"musicbattle/transport"
)

// Config identifies the operator at the console.
type Config struct {
	ParticipantID string
	DisplayName   string
	ChatID        string
	Prompt        string
}

// Console runs the bot against a line-oriented terminal. Typing "#N" presses
// button N of the most recent message that carried buttons.
type Console struct {
	cfg     Config
	handler transport.Handler
	out     io.Writer

	mu      sync.Mutex
	buttons []transport.Button
}

// New constructs a console session.
func New(cfg Config, handler transport.Handler, out io.Writer) *Console {
	if strings.TrimSpace(cfg.ParticipantID) == "" {
		cfg.ParticipantID = "console"
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		cfg.ChatID = "console"
	}
	return &Console{cfg: cfg, handler: handler, out: out}
}

// Run reads commands until in is exhausted or ctx is cancelled. Events are
// handled one at a time in arrival order.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	c.prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}
		inbound, err := c.inbound(line)
		if err != nil {
			fmt.Fprintf(c.out, "! %v\n", err)
			c.prompt()
			continue
		}
		if err := c.handler.Handle(ctx, inbound, c); err != nil {
			fmt.Fprintf(c.out, "! %v\n", err)
		}
		c.prompt()
	}
	return scanner.Err()
}

func (c *Console) inbound(line string) (transport.Inbound, error) {
	in := transport.Inbound{
		ID: uuid.NewString(),
		Participant: transport.Participant{
			ID:          transport.FlexString(c.cfg.ParticipantID),
			DisplayName: c.cfg.DisplayName,
		},
		ChatID: transport.FlexString(c.cfg.ChatID),
	}
	if !strings.HasPrefix(line, "#") {
		in.Text = line
		return in, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, "#"))
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || n < 1 || n > len(c.buttons) {
		return transport.Inbound{}, fmt.Errorf("no button %s", line)
	}
	action := *c.buttons[n-1].Action
	in.Action = &action
	return in, nil
}

// Send prints msg and remembers its buttons.
func (c *Console) Send(_ context.Context, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	if msg.Replace {
		b.WriteString("(updated) ")
	}
	b.WriteString(msg.Text)
	b.WriteString("\n")
	var flat []transport.Button
	for _, row := range msg.Buttons {
		for _, button := range row {
			if button.Action == nil {
				continue
			}
			flat = append(flat, button)
			fmt.Fprintf(&b, "  [#%d] %s\n", len(flat), button.Label)
		}
	}
	if len(flat) > 0 {
		c.buttons = flat
	}
	_, err := io.WriteString(c.out, b.String())
	return err
}

func (c *Console) prompt() {
	if c.cfg.Prompt != "" {
		_, _ = io.WriteString(c.out, c.cfg.Prompt)
	}
}
