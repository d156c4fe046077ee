package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Jaineel22/os-chatsystem/internal/bootstrap"
	"github.com/Jaineel22/os-chatsystem/internal/chat"
	"github.com/Jaineel22/os-chatsystem/internal/config"
	"github.com/Jaineel22/os-chatsystem/internal/console"
	"github.com/Jaineel22/os-chatsystem/internal/event"
	"github.com/Jaineel22/os-chatsystem/internal/history"
	"github.com/Jaineel22/os-chatsystem/internal/ipc"
	"github.com/Jaineel22/os-chatsystem/internal/logging"
	"github.com/Jaineel22/os-chatsystem/internal/segment"
	"github.com/Jaineel22/os-chatsystem/internal/session"
	"github.com/Jaineel22/os-chatsystem/internal/util"
	"github.com/spf13/cobra"
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	perm, err := cfg.IPC.FileMode()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Logging)
	defer func() { _ = logger.Close() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	sess, err := bootstrap.CreateOrAttach(ctx, bootstrap.Options{
		ShmKey:            ipc.Key(cfg.IPC.ShmKey),
		SemKey:            ipc.Key(cfg.IPC.SemKey),
		Perm:              perm,
		ReadyPollInterval: cfg.IPC.ReadyPollInterval(),
		ReadyTimeout:      cfg.IPC.ReadyTimeout(),
		ReclaimStale:      cfg.IPC.ReclaimStale,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("bootstrap failed", "error", err.Error())
		return fmt.Errorf("failed to join chat: %w", err)
	}
	logger = logger.WithRole(sess.Role.String()).WithPeer(sess.Self.String())
	logger.Info("shared resources attached", "shm_id", sess.SharedMemoryID(), "sem_id", sess.Sems.ID())

	// A signal removes the shared resources without touching the mutex; the
	// runner notices through the cancelled context.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("signal received, removing shared resources", "signal", sig.String())
			if err := sess.Destroy(); err != nil {
				logger.Warn("failed to remove shared resources", "error", err.Error())
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	name := displayName(cfg.Chat.Name, sess.Self)
	interactive := console.IsTerminal(in) && console.IsTerminal(out)

	ui, err := newConsole(out, cfg.UI, sess.Self, name, interactive)
	if err != nil {
		logger.Warn("theme not loaded", "path", cfg.UI.Theme, "error", err.Error())
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v, using the default theme\n", err)
	}

	bus := event.NewBus()
	bus.SetLogger(logger)
	ui.Subscribe(bus)
	defer ui.Close()

	if cfg.History.Enabled {
		hist, err := history.Open(cfg.History.File, cfg.History.MaxSizeBytes(), history.WithLogger(logger))
		if err != nil {
			logger.Warn("history disabled", "path", cfg.History.File, "error", err.Error())
			ui.Error(fmt.Sprintf("Chat history disabled: %v", err))
		} else {
			hist.Subscribe(bus)
			defer func() { _ = hist.Close() }()
		}
	}

	if cfg.UI.Banner {
		ui.Banner(name, Version)
	}

	ep, err := chat.New(sess.Layout, sess.Mutex(), sess.Notify(), sess.Self, name,
		chat.WithLogger(logger),
		chat.WithBus(bus),
		chat.WithBackoff(cfg.Chat.Backoff(), cfg.Chat.MaxBackoff()),
		chat.WithLeaveTimeout(cfg.Chat.LeaveTimeout()),
	)
	if err != nil {
		_ = sess.Close(false)
		return fmt.Errorf("failed to start chat: %w", err)
	}

	bus.Publish(event.NewSessionStartedEvent(sess.Role.String(), sess.Self.String(), name, os.Getpid()))
	if sess.Role == bootstrap.RoleInitiator {
		ui.Info("Waiting for the other participant to join...")
	}
	if !cfg.UI.Banner {
		ui.System("Type 'exit', 'bye', 'quit', or 'q' to leave.")
	}

	runner := session.NewRunner(ep, in, ui,
		session.WithLogger(logger),
		session.WithBus(bus),
		session.WithPollInterval(cfg.Chat.PollInterval()),
	)
	res, runErr := runner.Run(ctx)
	cancel()

	ui.ShowRecent()
	lastOut := res.LastOut && !res.Removed
	if err := sess.Close(lastOut); err != nil {
		logger.Warn("teardown incomplete", "error", err.Error())
		ui.Error(fmt.Sprintf("Cleanup incomplete: %v (run 'oschat cleanup')", err))
	} else if lastOut {
		ui.Muted("Shared resources removed.")
	}
	return runErr
}

// newLogger opens the diagnostic log. Failures fall back to a no-op logger
// so a read-only log directory never blocks chatting.
func newLogger(stderr io.Writer, cfg config.LoggingConfig) *logging.Logger {
	if !cfg.Enabled {
		return logging.NopLogger()
	}
	dir := cfg.LogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "Warning: logging disabled: %v\n", err)
		return logging.NopLogger()
	}
	logger, err := logging.NewLogger(dir, cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Warning: logging disabled: %v\n", err)
		return logging.NopLogger()
	}
	return logger
}

// newConsole builds the terminal renderer. A theme that fails to load is
// reported and replaced by the default palette.
func newConsole(out io.Writer, cfg config.UIConfig, self segment.PeerID, name string, interactive bool) (*console.Console, error) {
	palette := console.DefaultPalette()
	var themeErr error
	if cfg.Theme != "" {
		theme, err := console.LoadThemeFile(cfg.Theme)
		if err != nil {
			themeErr = err
		} else {
			palette = theme.Apply(palette)
		}
	}

	opts := []console.Option{
		console.WithStyles(console.NewStyles(console.NewRenderer(out, cfg.Color), palette)),
		console.WithTimestamps(cfg.Timestamps),
	}
	if interactive {
		opts = append(opts, console.WithPrompt(name+": "))
	}
	return console.New(out, self.String(), opts...), themeErr
}

// displayName picks the label sent with each message.
func displayName(configured string, self segment.PeerID) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = "Peer " + self.String()
	}
	return util.ClipBytes(chat.Sanitize(name), segment.MaxSenderLen)
}
