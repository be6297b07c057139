// Package chat lets a user talk to a single citizen in character.
package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/hession/citysim/internal/generator"
	"github.com/hession/citysim/internal/ledger"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
)

// FallbackReply is shown when the generator cannot answer
const FallbackReply = "(looks thoughtful but doesn't answer)"

// ComposeContext describes a citizen for in-character replies: profile,
// values, background, social bonds and the five most important memories.
func ComposeContext(c *model.Citizen) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.Name)
	fmt.Fprintf(&b, "Age: %d\n", c.Age)
	fmt.Fprintf(&b, "Role: %s\n", c.Occupation)
	fmt.Fprintf(&b, "Personality Traits: %s\n", strings.Join(c.Traits, ", "))
	fmt.Fprintf(&b, "Core Values: %s\n", strings.Join(c.Values, ", "))
	fmt.Fprintf(&b, "History: %s\n", c.Background)

	b.WriteString("\nSocial Bonds:\n")
	for _, r := range c.Relationships {
		detail := fmt.Sprintf("Strength: %.2f", r.Strength)
		if r.Context != "" {
			detail = r.Context
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", r.TargetName, r.Type, detail)
	}

	b.WriteString("\nNotable Memories:\n")
	for _, m := range ledger.TopByImportance(c, 5) {
		fmt.Fprintf(&b, "- %s\n", m.Description)
	}

	fmt.Fprintf(&b, "\nPlease respond as %s, considering the above details.\n", c.Name)
	return b.String()
}

// Session is one conversation with a citizen
type Session struct {
	citizen *model.Citizen
	gen     generator.Generator
	context string
	timeout time.Duration
	log     *logger.Logger
}

// NewSession prepares a conversation with c
func NewSession(c *model.Citizen, gen generator.Generator, timeout time.Duration, log *logger.Logger) *Session {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Session{
		citizen: c,
		gen:     gen,
		context: ComposeContext(c),
		timeout: timeout,
		log:     log,
	}
}

// Citizen returns who the session talks to
func (s *Session) Citizen() *model.Citizen {
	return s.citizen
}

// Reply answers message in character. Generation failures yield FallbackReply.
func (s *Session) Reply(ctx context.Context, message string) string {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.gen.GenerateChatReply(cctx, s.context, message)
	if err != nil || strings.TrimSpace(reply) == "" {
		s.log.Warn("chat reply from %s failed: %v", s.citizen.Name, err)
		return FallbackReply
	}
	return strings.TrimSpace(reply)
}

// Handle processes one line of input and reports whether the session should
// end.
func (s *Session) Handle(ctx context.Context, line string, out io.Writer) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	if strings.HasPrefix(input, "/") {
		return s.command(input, out)
	}
	if strings.EqualFold(input, "exit") {
		return true
	}

	fmt.Fprintf(out, "\n%s%s:%s %s\n\n", colorBlue, s.citizen.Name, colorReset, s.Reply(ctx, input))
	return false
}

func (s *Session) command(input string, out io.Writer) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/help":
		fmt.Fprintf(out, `
%sChat Commands:%s
  /help  - Show this help message
  /who   - Show who you are talking to
  /exit  - End the conversation

`, colorYellow, colorReset)
	case "/who":
		s.printWho(out)
	case "/exit", "/quit", "/q":
		return true
	default:
		fmt.Fprintf(out, "%sUnknown command: %s%s\n", colorYellow, input, colorReset)
		fmt.Fprintln(out, "Type /help for available commands")
	}
	return false
}

func (s *Session) printWho(out io.Writer) {
	c := s.citizen
	fmt.Fprintf(out, "%s%s%s, %d, %s\n", colorCyan, c.Name, colorReset, c.Age, c.Occupation)
	if len(c.Traits) > 0 {
		fmt.Fprintf(out, "  Traits: %s\n", strings.Join(c.Traits, ", "))
	}
	fmt.Fprintf(out, "  %s, %s\n",
		english.Plural(len(c.Relationships), "relationship", "relationships"),
		english.Plural(len(c.Memories), "memory", "memories"))
	fmt.Fprintf(out, "  Arrived %s\n", humanize.Time(c.CreatedAt))
}
