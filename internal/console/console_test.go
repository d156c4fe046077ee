package console

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/event"
)

var fixed = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func newPlain(buf *bytes.Buffer, self string, opts ...Option) *Console {
	styles := NewStyles(NewRenderer(buf, ColorNever), DefaultPalette())
	opts = append([]Option{WithStyles(styles), WithClock(func() time.Time { return fixed })}, opts...)
	return New(buf, self, opts...)
}

func TestConsole_Message(t *testing.T) {
	tests := []struct {
		name       string
		timestamps bool
		want       string
	}{
		{"with timestamps", true, "[14:05] bob: hi there\n"},
		{"without timestamps", false, "bob: hi there\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := newPlain(&buf, "A", WithTimestamps(tt.timestamps))
			c.Message("B", "bob", "hi there", fixed)
			if buf.String() != tt.want {
				t.Errorf("Message() wrote %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestConsole_MessageKeepsTabs(t *testing.T) {
	var buf bytes.Buffer
	c := newPlain(&buf, "A", WithTimestamps(false))
	c.Message("B", "bob", "a\tb", fixed)
	if buf.String() != "bob: a\tb\n" {
		t.Errorf("Message() wrote %q, want tab preserved", buf.String())
	}
}

func TestConsole_Banner(t *testing.T) {
	var buf bytes.Buffer
	c := newPlain(&buf, "A")
	c.Banner("alice", "2.1")

	out := buf.String()
	for _, want := range []string{"CHAT SYSTEM v2.1", "Welcome alice!", "Commands: exit, bye, quit, q", "═"} {
		if !strings.Contains(out, want) {
			t.Errorf("Banner() output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("Banner() emitted escape codes with color disabled: %q", out)
	}
}

func TestConsole_Prompt(t *testing.T) {
	var buf bytes.Buffer
	c := newPlain(&buf, "A", WithPrompt("alice: "), WithTimestamps(false))

	c.Prompt()
	if buf.String() != "alice: " {
		t.Fatalf("Prompt() wrote %q", buf.String())
	}
	buf.Reset()

	c.System("note")
	want := "\r\033[Knote\nalice: "
	if buf.String() != want {
		t.Errorf("System() with prompt wrote %q, want %q", buf.String(), want)
	}
}

func TestConsole_Subscribe(t *testing.T) {
	var buf bytes.Buffer
	c := newPlain(&buf, "A", WithTimestamps(false))
	bus := event.NewBus()
	c.Subscribe(bus)

	bus.Publish(event.NewSessionStartedEvent("initiator", "A", "alice", 1))
	bus.Publish(event.NewMessageSentEvent(1, "alice", "hello", 1))
	bus.Publish(event.NewMessageReceivedEvent(2, "B", "bob", "hey"))
	bus.Publish(event.NewBackpressureEvent(10, 1, 2*time.Second))
	bus.Publish(event.NewLeaveDroppedEvent("queue full"))
	bus.Publish(event.NewPeerLeftEvent("B", "bob", "exit"))
	bus.Publish(event.NewPeerLeftEvent("B", "", "gone"))
	bus.Publish(event.NewSessionClosedEvent("peer left", true))

	want := []string{
		"Connected to chat system as peer A (initiator).",
		"You: hello",
		"bob: hey",
		"Message buffer full! Waiting for space... (retry in 2s)",
		"Leave notice not delivered: queue full",
		"bob has left the chat.",
		"Peer B disconnected.",
		"Chat session ended: peer left",
	}
	got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("rendered =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	c.Close()
	c.Close()
	if n := bus.SubscriptionCount(); n != 0 {
		t.Errorf("SubscriptionCount() = %d after Close, want 0", n)
	}
	buf.Reset()
	bus.Publish(event.NewMessageReceivedEvent(3, "B", "bob", "late"))
	if buf.Len() != 0 {
		t.Errorf("rendered after Close: %q", buf.String())
	}
}

func TestConsole_Recent(t *testing.T) {
	var buf bytes.Buffer
	c := newPlain(&buf, "B", WithTimestamps(false))
	bus := event.NewBus()
	c.Subscribe(bus)
	defer c.Close()

	for i := 1; i <= RecentSize+2; i++ {
		bus.Publish(event.NewMessageSentEvent(uint32(i), "bob", string(rune('a'+i-1)), 1))
	}
	got := c.Recent()
	want := []string{"c", "d", "e", "f", "g"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Recent() = %v, want %v", got, want)
	}

	buf.Reset()
	c.ShowRecent()
	out := buf.String()
	if !strings.HasPrefix(out, "Recent messages you sent:\n") || !strings.Contains(out, "  5. g\n") {
		t.Errorf("ShowRecent() wrote %q", out)
	}
}

func TestConsole_ShowRecentEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := newPlain(&buf, "A")
	c.ShowRecent()
	if buf.Len() != 0 {
		t.Errorf("ShowRecent() with nothing sent wrote %q", buf.String())
	}
}

func TestNewRenderer(t *testing.T) {
	var buf bytes.Buffer
	style := NewStyles(NewRenderer(&buf, ColorAlways), DefaultPalette()).PeerA
	if out := style.Render("x"); !strings.Contains(out, "\x1b[") {
		t.Errorf("ColorAlways rendered %q, want escape codes", out)
	}

	style = NewStyles(NewRenderer(&buf, ColorAuto), DefaultPalette()).PeerA
	if out := style.Render("x"); out != "x" {
		t.Errorf("ColorAuto on a buffer rendered %q, want plain", out)
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("IsTerminal(buffer) = true")
	}
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("IsTerminal(regular file) = true")
	}
}

func TestReadLines(t *testing.T) {
	t.Run("lines then close", func(t *testing.T) {
		ch := ReadLines(context.Background(), strings.NewReader("one\r\ntwo\nthree"))
		var got []string
		for l := range ch {
			if l.Err != nil {
				t.Fatalf("unexpected error %v", l.Err)
			}
			got = append(got, l.Text)
		}
		// The scanner strips a trailing \r with the \n.
		if strings.Join(got, "|") != "one|two|three" {
			t.Errorf("ReadLines() = %q", got)
		}
	})

	t.Run("overlong line", func(t *testing.T) {
		ch := ReadLines(context.Background(), strings.NewReader(strings.Repeat("x", maxLineBytes+1)))
		var last Line
		for l := range ch {
			last = l
		}
		if last.Err == nil {
			t.Error("ReadLines() reported no error for an overlong line")
		}
	})

	t.Run("read error", func(t *testing.T) {
		boom := errors.New("boom")
		ch := ReadLines(context.Background(), errReader{boom})
		l, ok := <-ch
		if !ok || !errors.Is(l.Err, boom) {
			t.Errorf("ReadLines() = %+v, %v, want error %v", l, ok, boom)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		ch := ReadLines(ctx, strings.NewReader("a\nb\nc\n"))
		cancel()
		deadline := time.After(time.Second)
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("channel not closed after cancel")
			}
		}
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestLoadThemeFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		return path
	}

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"valid", "name: dusk\nversion: \"1\"\ncolors:\n  peer_a: \"#ff8800\"\n  error: \"#f00\"\n", ""},
		{"missing name", "version: \"1\"\n", "name is required"},
		{"bad version", "name: x\nversion: \"2\"\n", "unsupported theme version"},
		{"bad color", "name: x\nversion: \"1\"\ncolors:\n  system: yellow\n", "'system' has invalid format"},
		{"not yaml", "name: [\n", "parsing theme file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write(strings.ReplaceAll(tt.name, " ", "_")+".yaml", tt.content)
			theme, err := LoadThemeFile(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadThemeFile() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadThemeFile() error = %v", err)
			}
			p := theme.Apply(DefaultPalette())
			if p.PeerA != "#ff8800" || p.Error != "#f00" {
				t.Errorf("Apply() = %+v, want overrides", p)
			}
			if p.PeerB != DefaultPalette().PeerB {
				t.Errorf("Apply() changed PeerB to %q", p.PeerB)
			}
		})
	}

	if _, err := LoadThemeFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadThemeFile(missing) should fail")
	}
}
