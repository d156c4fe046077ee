package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestIsLeaveCommand(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"exit", true},
		{"bye", true},
		{"quit", true},
		{"q", true},
		{"EXIT", true},
		{"  Bye \n", true},
		{"Q", true},
		{"exit now", false},
		{"quitter", false},
		{"", false},
		{"hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := IsLeaveCommand(tt.line); got != tt.want {
				t.Errorf("IsLeaveCommand(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"crlf", "hello\r\n", "hello"},
		{"tab kept", "a\tb", "a\tb"},
		{"control", "a\x07b", "a b"},
		{"escape", "\x1b[31mred", " [31mred"},
		{"delete", "a\x7fb", "a b"},
		{"inner newline", "a\nb\n", "a b"},
		{"invalid utf8", "a\xffb", "a\uFFFDb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"ok", "hello", nil},
		{"empty", "", ErrEmptyMessage},
		{"blank", "  \t ", ErrEmptyMessage},
		{"max length", strings.Repeat("x", 199), nil},
		{"too long", strings.Repeat("x", 200), ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.text); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}
