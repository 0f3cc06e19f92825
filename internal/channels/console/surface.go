// Package console renders the bot conversation in a terminal so the whole
// approval flow can be walked without a Slack workspace.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"hitlbot/internal/agent"
	"hitlbot/internal/delivery"
	"hitlbot/internal/presentation"
)

// Surface prints messages, approval requests and streams to a writer. Message
// timestamps are sequence numbers so updates and deletes can be followed.
type Surface struct {
	out          io.Writer
	colorEnabled bool

	mu      sync.Mutex
	seq     int
	streams map[string]bool
}

var (
	_ presentation.Messenger      = (*Surface)(nil)
	_ presentation.ApprovalPoster = (*Surface)(nil)
	_ delivery.StreamClient       = (*Surface)(nil)
)

// NewSurface creates a terminal surface.
func NewSurface(out io.Writer, colorEnabled bool) *Surface {
	return &Surface{out: out, colorEnabled: colorEnabled, streams: make(map[string]bool)}
}

func (s *Surface) PostMessage(_ context.Context, channel, threadTS, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.nextTS()
	s.printf("%s %s\n", s.colorize(s.label(channel, threadTS, ts), color.FgHiBlack), text)
	return ts, nil
}

func (s *Surface) UpdateMessage(_ context.Context, channel, ts, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printf("%s %s\n", s.colorize(fmt.Sprintf("[%s #%s edited]", channel, ts), color.FgHiBlack), text)
	return nil
}

func (s *Surface) DeleteMessage(_ context.Context, channel, ts string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printf("%s\n", s.colorize(fmt.Sprintf("[%s #%s deleted]", channel, ts), color.FgHiBlack))
	return nil
}

func (s *Surface) PostApprovalRequest(_ context.Context, channel, threadTS string, req agent.ApprovalRequired) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.nextTS()
	s.printf("%s %s\n", s.colorize(s.label(channel, threadTS, ts), color.FgHiBlack),
		s.colorize(fmt.Sprintf("Approval required for %s", req.ToolName), color.FgYellow, color.Bold))
	for _, line := range strings.Split(req.ArgsJSON(), "\n") {
		s.printf("   %s\n", s.colorize(line, color.FgCyan))
	}
	return ts, nil
}

func (s *Surface) StartStream(_ context.Context, req delivery.StartRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.nextTS()
	s.streams[ts] = true
	s.printf("%s ", s.colorize(s.label(req.Channel, req.ThreadTS, ts), color.FgHiBlack))
	return ts, nil
}

func (s *Surface) AppendStream(_ context.Context, req delivery.AppendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streams[req.TS] {
		return fmt.Errorf("unknown stream %q", req.TS)
	}
	s.printf("%s", s.colorize(req.MarkdownText, color.FgGreen))
	return nil
}

func (s *Surface) StopStream(_ context.Context, req delivery.StopRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streams[req.TS] {
		return fmt.Errorf("unknown stream %q", req.TS)
	}
	delete(s.streams, req.TS)
	s.printf("%s\n", s.colorize(req.MarkdownText, color.FgGreen))
	return nil
}

func (s *Surface) nextTS() string {
	s.seq++
	return fmt.Sprintf("%d", s.seq)
}

func (s *Surface) label(channel, threadTS, ts string) string {
	if threadTS == "" {
		return fmt.Sprintf("[%s #%s]", channel, ts)
	}
	return fmt.Sprintf("[%s #%s in %s]", channel, ts, threadTS)
}

func (s *Surface) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Surface) colorize(text string, attributes ...color.Attribute) string {
	if !s.colorEnabled || text == "" {
		return text
	}
	return color.New(attributes...).Sprint(text)
}
