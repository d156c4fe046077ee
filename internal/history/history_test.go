package history

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/event"
)

var fixed = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

func TestLog_Message(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.log")
	l, err := Open(path, 0, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if err := l.Message("alice", "hello", fixed); err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if err := l.System("bob left the chat"); err != nil {
		t.Fatalf("System() error = %v", err)
	}

	want := "[2024-03-09 14:05:07] alice: hello\n" +
		"[2024-03-09 14:05:07] SYSTEM: bob left the chat\n"
	if got := readFile(t, path); got != want {
		t.Errorf("history = %q, want %q", got, want)
	}
}

func TestLog_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.log")
	if err := os.WriteFile(path, []byte("[old] x: y\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Message("a", "b", fixed); err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got := readFile(t, path)
	if !strings.HasPrefix(got, "[old] x: y\n") {
		t.Errorf("existing content lost: %q", got)
	}
	if err := l.Message("a", "late", fixed); err == nil {
		t.Error("Message() after Close should fail")
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestLog_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.log")
	l, err := Open(path, 80, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	// Each line is 33 bytes; the third crosses 80.
	for _, text := range []string{"one", "two", "six"} {
		if err := l.Message("alice", text, fixed); err != nil {
			t.Fatalf("Message() error = %v", err)
		}
	}

	old := readFile(t, path+".old")
	if !strings.Contains(old, "alice: one") || !strings.Contains(old, "alice: two") {
		t.Errorf(".old = %q, want the first two lines", old)
	}

	cur := readFile(t, path)
	lines := strings.Split(strings.TrimSpace(cur), "\n")
	if len(lines) != 2 {
		t.Fatalf("current file has %d lines, want 2: %q", len(lines), cur)
	}
	if lines[0] != "[2024-03-09 14:05:07] SYSTEM: "+RotationNotice {
		t.Errorf("first line = %q, want rotation notice", lines[0])
	}
	if !strings.HasSuffix(lines[1], "alice: six") {
		t.Errorf("second line = %q, want the third message", lines[1])
	}

	// A second rotation replaces the single backup.
	for _, text := range []string{"ten", "end"} {
		if err := l.Message("bob", text, fixed); err != nil {
			t.Fatalf("Message() error = %v", err)
		}
	}
	if _, err := os.Stat(path + ".old.2"); !os.IsNotExist(err) {
		t.Errorf("unexpected second backup: %v", err)
	}
}

func TestLog_SharedFileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.log")
	const limit = 300
	clock := WithClock(func() time.Time { return fixed })

	alice, err := Open(path, limit, clock)
	if err != nil {
		t.Fatalf("Open(alice) error = %v", err)
	}
	defer alice.Close()
	bob, err := Open(path, limit, clock)
	if err != nil {
		t.Fatalf("Open(bob) error = %v", err)
	}
	defer bob.Close()

	var written []string
	for i := 1; i <= 20; i++ {
		for _, p := range []struct {
			name string
			log  *Log
		}{{"alice", alice}, {"bob", bob}} {
			body := fmt.Sprintf("%s: line %02d", p.name, i)
			if err := p.log.Message(p.name, fmt.Sprintf("line %02d", i), fixed); err != nil {
				t.Fatalf("Message(%s, %d) error = %v", p.name, i, err)
			}
			written = append(written, body)
		}
	}

	chatLines := func(file string) []string {
		var out []string
		for _, line := range strings.Split(strings.TrimSpace(readFile(t, file)), "\n") {
			body := strings.TrimPrefix(line, "[2024-03-09 14:05:07] ")
			if strings.HasPrefix(body, SystemSender+":") {
				continue
			}
			out = append(out, body)
		}
		return out
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() > limit {
		t.Errorf("current file is %d bytes, want at most %d", info.Size(), limit)
	}

	// Whatever survives the single backup must be the newest lines of both
	// writers, in order, with nothing missing in between.
	kept := append(chatLines(path+".old"), chatLines(path)...)
	if len(kept) < 8 {
		t.Fatalf("only %d lines kept across current and .old: %q", len(kept), kept)
	}
	tail := written[len(written)-len(kept):]
	if strings.Join(kept, "\n") != strings.Join(tail, "\n") {
		t.Errorf("kept lines =\n%s\nwant the last %d written\n%s",
			strings.Join(kept, "\n"), len(kept), strings.Join(tail, "\n"))
	}

	cur := strings.Join(chatLines(path), "\n")
	for _, last := range []string{"alice: line 20", "bob: line 20"} {
		if !strings.Contains(cur, last) {
			t.Errorf("current file lacks %q:\n%s", last, cur)
		}
	}
}

func TestLog_NewlinesFlattened(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.log")
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if err := l.Message("a", "line1\nline2", fixed); err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if got := readFile(t, path); strings.Count(got, "\n") != 1 {
		t.Errorf("history = %q, want a single line", got)
	}
}

func TestLog_Subscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.log")
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	bus := event.NewBus()
	l.Subscribe(bus)
	if bus.SubscriptionCount() == 0 {
		t.Fatal("Subscribe() registered no handlers")
	}

	bus.Publish(event.NewSessionStartedEvent("initiator", "A", "alice", 42))
	bus.Publish(event.NewMessageSentEvent(1, "alice", "hi bob", 1))
	bus.Publish(event.NewMessageReceivedEvent(2, "B", "bob", "hi alice"))
	bus.Publish(event.NewBackpressureEvent(10, 1, time.Second))
	bus.Publish(event.NewPeerLeftEvent("B", "bob", "exit"))
	bus.Publish(event.NewPeerLeftEvent("B", "", "gone"))
	bus.Publish(event.NewLeaveDroppedEvent("queue full"))
	bus.Publish(event.NewSessionClosedEvent("peer left", true))

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Close, want 0", bus.SubscriptionCount())
	}

	got := readFile(t, path)
	stamp := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `)
	var bodies []string
	for _, line := range strings.Split(strings.TrimSpace(got), "\n") {
		if !stamp.MatchString(line) {
			t.Errorf("line %q lacks a timestamp", line)
			continue
		}
		bodies = append(bodies, stamp.ReplaceAllString(line, ""))
	}
	want := []string{
		"SYSTEM: alice joined as peer A (initiator)",
		"alice: hi bob",
		"bob: hi alice",
		"SYSTEM: bob left the chat",
		"SYSTEM: Peer B disconnected",
		"SYSTEM: Leave notice not delivered: queue full",
		"SYSTEM: Chat session ended: peer left",
	}
	if strings.Join(bodies, "\n") != strings.Join(want, "\n") {
		t.Errorf("history lines =\n%s\nwant\n%s", strings.Join(bodies, "\n"), strings.Join(want, "\n"))
	}

	// Events after Close are not recorded.
	bus.Publish(event.NewMessageReceivedEvent(3, "B", "bob", "too late"))
	if strings.Contains(readFile(t, path), "too late") {
		t.Error("event recorded after Close")
	}
}
