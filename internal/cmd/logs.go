package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Jaineel22/os-chatsystem/internal/config"
	"github.com/Jaineel22/os-chatsystem/internal/console"
	"github.com/Jaineel22/os-chatsystem/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View diagnostic logs",
	Long: `View and filter the diagnostic log shared by both chat participants.

Rotated backups are merged so entries appear as a single timeline.

Examples:
  # Show the last 50 entries
  oschat logs

  # Show everything logged by peer B
  oschat logs --peer B -n 0

  # Follow logs in real-time
  oschat logs -f

  # Warnings and errors from the last hour
  oschat logs --level warn --since 1h

  # Search for specific patterns
  oschat logs --grep "backoff|full"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
	logsPeer   string
	logsRole   string
	logsFormat string
	logsColor  string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsPeer, "peer", "", "Filter by peer slot (A or B)")
	logsCmd.Flags().StringVar(&logsRole, "role", "", "Filter by role (initiator or joiner)")
	logsCmd.Flags().StringVarP(&logsFormat, "format", "o", "text", "Output format (text, json, csv)")
	logsCmd.Flags().StringVar(&logsColor, "color", console.ColorAuto, "Color text output (auto, always, never)")
}

// logQuery holds the parsed filter flags.
type logQuery struct {
	filter logging.LogFilter
	grep   *regexp.Regexp
}

func (q logQuery) match(e logging.LogEntry) bool {
	if !q.filter.Match(e) {
		return false
	}
	if q.grep == nil {
		return true
	}
	// Search in message and attribute values
	text := e.Message
	for _, v := range e.Attrs {
		text += " " + fmt.Sprintf("%v", v)
	}
	return q.grep.MatchString(text)
}

func parseLogQuery(now time.Time) (logQuery, error) {
	var q logQuery
	if logsLevel != "" {
		q.filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return q, fmt.Errorf("invalid duration format: %w", err)
		}
		q.filter.StartTime = now.Add(-d)
	}
	q.filter.Peer = logsPeer
	q.filter.Role = logsRole
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return q, fmt.Errorf("invalid grep pattern: %w", err)
		}
		q.grep = re
	}
	return q, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	dir := cfg.Logging.LogDir()
	out := cmd.OutOrStdout()

	q, err := parseLogQuery(time.Now())
	if err != nil {
		return err
	}

	if logsFollow {
		if logsFormat != "text" && logsFormat != "" {
			return fmt.Errorf("--follow only supports text output")
		}
		return followLogs(cmd.Context(), out, filepath.Join(dir, logging.LogFileName), q)
	}

	entries, err := logging.AggregateLogs(dir)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "No logs found in %s\n", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}

	var matched []logging.LogEntry
	for _, e := range entries {
		if q.match(e) {
			matched = append(matched, e)
		}
	}

	// Apply tail limit
	if logsTail > 0 && len(matched) > logsTail {
		matched = matched[len(matched)-logsTail:]
	}

	if logsFormat == "text" || logsFormat == "" {
		if len(matched) == 0 {
			fmt.Fprintln(out, "No matching log entries found.")
			return nil
		}
		styles := newLogStyles(console.NewRenderer(out, logsColor))
		for _, e := range matched {
			fmt.Fprintln(out, styles.format(e))
		}
		return nil
	}
	return logging.WriteEntries(out, matched, logsFormat)
}

// followLogs implements tail -f behavior for the log file. A rotation while
// following is not detected.
func followLogs(ctx context.Context, out io.Writer, logPath string, q logQuery) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Seek to end of file
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")
	styles := newLogStyles(console.NewRenderer(out, logsColor))

	reader := bufio.NewReader(file)
	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("error reading log file: %w", err)
		}
		if err != nil {
			// Keep a line that is still being written
			partial += line
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		line = strings.TrimSpace(partial + line)
		partial = ""
		if line == "" {
			continue
		}
		entry, err := logging.ParseEntry(line)
		if err != nil {
			// If we can't parse as JSON, display raw line
			fmt.Fprintln(out, line)
			continue
		}
		if q.match(entry) {
			fmt.Fprintln(out, styles.format(entry))
		}
	}
}

// logStyles colors text output by level.
type logStyles struct {
	time   lipgloss.Style
	fields lipgloss.Style
	levels map[string]lipgloss.Style
}

func newLogStyles(r *lipgloss.Renderer) logStyles {
	return logStyles{
		time:   r.NewStyle().Foreground(lipgloss.Color("8")),
		fields: r.NewStyle().Foreground(lipgloss.Color("6")),
		levels: map[string]lipgloss.Style{
			logging.LevelDebug: r.NewStyle().Foreground(lipgloss.Color("8")),
			logging.LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("4")),
			logging.LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("3")),
			logging.LevelError: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		},
	}
}

// format renders "[15:04:05.000] [LEVEL] message peer=A role=initiator k=v".
func (s logStyles) format(e logging.LogEntry) string {
	var sb strings.Builder
	sb.WriteString(s.time.Render("[" + e.Timestamp.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	level := strings.ToUpper(e.Level)
	if st, ok := s.levels[level]; ok {
		sb.WriteString(st.Render("[" + level + "]"))
	} else {
		sb.WriteString("[" + level + "]")
	}
	sb.WriteString(" ")
	sb.WriteString(e.Message)

	if e.Peer != "" {
		sb.WriteString(" " + s.fields.Render("peer=") + e.Peer)
	}
	if e.Role != "" {
		sb.WriteString(" " + s.fields.Render("role=") + e.Role)
	}
	for _, k := range sortedKeys(e.Attrs) {
		sb.WriteString(" " + s.fields.Render(k+"=") + fmt.Sprintf("%v", e.Attrs[k]))
	}
	return sb.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
