package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/Jaineel22/os-chatsystem/internal/config"
	"github.com/Jaineel22/os-chatsystem/internal/ipc"
	"github.com/Jaineel22/os-chatsystem/internal/segment"
	"github.com/Jaineel22/os-chatsystem/internal/util"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the shared chat resources",
	Long: `Display the shared memory header, queue depth, per-peer cursors and
process IDs, and the semaphore values.

The segment is attached read-only and the mutex is not taken, so the
figures are a best-effort snapshot of a live session.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusFormat string

// statusTextWidth bounds message text in the text report.
const statusTextWidth = 60

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusFormat, "format", "o", "text", "Output format (text, yaml)")
}

type statusReport struct {
	Segment    *segmentStatus `yaml:"segment,omitempty"`
	Semaphores *semStatus     `yaml:"semaphores,omitempty"`
}

type segmentStatus struct {
	Key         string        `yaml:"key"`
	ID          int           `yaml:"id"`
	Attachments int           `yaml:"attachments"`
	Version     uint32        `yaml:"version"`
	Ready       bool          `yaml:"ready"`
	Queued      int           `yaml:"queued"`
	Capacity    int           `yaml:"capacity"`
	LastID      uint32        `yaml:"last_id"`
	Peers       []peerStatus  `yaml:"peers"`
	Messages    []entryStatus `yaml:"messages,omitempty"`
	Error       string        `yaml:"error,omitempty"`
}

type peerStatus struct {
	Slot      string `yaml:"slot"`
	PID       int32  `yaml:"pid"`
	Alive     bool   `yaml:"alive"`
	Watermark uint32 `yaml:"watermark"`
}

type entryStatus struct {
	ID     uint32 `yaml:"id"`
	Peer   string `yaml:"peer"`
	Sender string `yaml:"sender"`
	Kind   string `yaml:"kind"`
	Text   string `yaml:"text"`
}

type semStatus struct {
	Key     string `yaml:"key"`
	ID      int    `yaml:"id"`
	Mutex   int    `yaml:"mutex"`
	Notify  int    `yaml:"notify"`
	Waiters int    `yaml:"waiters"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	report, err := collectStatus(ipc.Key(cfg.IPC.ShmKey), ipc.Key(cfg.IPC.SemKey))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch statusFormat {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		return enc.Close()
	case "text", "":
		writeStatus(out, report)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, yaml)", statusFormat)
	}
}

func collectStatus(shmKey, semKey ipc.Key) (statusReport, error) {
	var report statusReport

	shm, err := ipc.OpenSharedMemoryReadOnly(shmKey)
	switch {
	case err == nil:
		report.Segment = inspectSegment(shm)
		_ = shm.Detach()
	case !errors.Is(err, ipc.ErrNotExist):
		return report, fmt.Errorf("failed to attach shared memory: %w", err)
	}

	sems, err := ipc.OpenSemSet(semKey)
	switch {
	case err == nil:
		s := &semStatus{Key: fmt.Sprintf("%#x", uint32(semKey)), ID: sems.ID()}
		if s.Mutex, s.Notify, err = sems.Values(); err != nil {
			return report, fmt.Errorf("failed to read semaphores: %w", err)
		}
		if s.Waiters, err = sems.Waiters(); err != nil {
			return report, fmt.Errorf("failed to read semaphores: %w", err)
		}
		report.Semaphores = s
	case !errors.Is(err, ipc.ErrNotExist):
		return report, fmt.Errorf("failed to open semaphore set: %w", err)
	}

	return report, nil
}

func inspectSegment(shm *ipc.SharedMemory) *segmentStatus {
	s := &segmentStatus{
		Key:      fmt.Sprintf("%#x", uint32(shm.Key())),
		ID:       shm.ID(),
		Capacity: segment.Capacity,
	}
	s.Attachments, _ = shm.Attachments()

	layout, err := segment.FromBytes(shm.Bytes())
	if err == nil {
		s.Version = layout.HeaderVersion()
		err = layout.Validate()
	}
	if err != nil {
		s.Error = err.Error()
		return s
	}

	// Read without the mutex; a torn read only affects this report.
	v := layout.View(segment.Orphaned)
	st := v.Stats()
	s.Ready = st.Ready
	s.Queued = st.Len
	s.LastID = st.LastID
	for _, p := range []segment.PeerID{segment.PeerA, segment.PeerB} {
		pid := st.PIDs[p]
		s.Peers = append(s.Peers, peerStatus{
			Slot:      p.String(),
			PID:       pid,
			Alive:     pid != 0 && ipc.ProcessAlive(pid),
			Watermark: st.Watermarks[p],
		})
	}
	for _, e := range v.Entries() {
		s.Messages = append(s.Messages, entryStatus{
			ID:     e.ID,
			Peer:   e.Peer.String(),
			Sender: e.Sender,
			Kind:   e.Kind.String(),
			Text:   e.Text,
		})
	}
	return s
}

func writeStatus(w io.Writer, r statusReport) {
	if r.Segment == nil && r.Semaphores == nil {
		fmt.Fprintln(w, "No chat in progress.")
		return
	}

	if s := r.Segment; s == nil {
		fmt.Fprintln(w, "Shared memory: none")
	} else {
		fmt.Fprintf(w, "Shared memory: key %s, ID %d, %d attached\n", s.Key, s.ID, s.Attachments)
		if s.Error != "" {
			fmt.Fprintf(w, "  unreadable: %s\n", s.Error)
		} else {
			fmt.Fprintf(w, "  version %d, ready %v\n", s.Version, s.Ready)
			fmt.Fprintf(w, "  queue %d/%d, last id %d\n", s.Queued, s.Capacity, s.LastID)
			for _, p := range s.Peers {
				state := "departed"
				switch {
				case p.PID != 0 && p.Alive:
					state = "alive"
				case p.PID != 0:
					state = "dead"
				}
				fmt.Fprintf(w, "  peer %s: pid %d (%s), watermark %d\n", p.Slot, p.PID, state, p.Watermark)
			}
			for _, m := range s.Messages {
				fmt.Fprintf(w, "  #%d %s %s [%s] %s\n", m.ID, m.Peer, m.Sender, m.Kind, util.TruncateANSI(m.Text, statusTextWidth))
			}
		}
	}

	if s := r.Semaphores; s == nil {
		fmt.Fprintln(w, "Semaphores: none")
	} else {
		fmt.Fprintf(w, "Semaphores: key %s, ID %d, mutex %d, notify %d, %d waiting\n",
			s.Key, s.ID, s.Mutex, s.Notify, s.Waiters)
	}
}
