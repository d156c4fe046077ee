package cmd

import (
	"errors"
	"fmt"

	"github.com/Jaineel22/os-chatsystem/internal/config"
	"github.com/Jaineel22/os-chatsystem/internal/ipc"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove a leftover shared memory segment and semaphore set",
	Long: `Remove the shared memory segment and semaphore set left behind by a chat
that did not shut down cleanly (for example after kill -9).

Do not run this while a chat is in progress: both participants would lose
the session.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var cleanupDryRun bool

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing it")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()
	shmKey, semKey := ipc.Key(cfg.IPC.ShmKey), ipc.Key(cfg.IPC.SemKey)

	if cleanupDryRun {
		found := false
		if shm, err := ipc.OpenSharedMemoryReadOnly(shmKey); err == nil {
			fmt.Fprintf(out, "Would remove shared memory (ID: %d, key: %#x)\n", shm.ID(), uint32(shmKey))
			_ = shm.Detach()
			found = true
		} else if !errors.Is(err, ipc.ErrNotExist) {
			return fmt.Errorf("inspect shared memory: %w", err)
		}
		if sems, err := ipc.OpenSemSet(semKey); err == nil {
			fmt.Fprintf(out, "Would remove semaphore set (ID: %d, key: %#x)\n", sems.ID(), uint32(semKey))
			found = true
		} else if !errors.Is(err, ipc.ErrNotExist) {
			return fmt.Errorf("inspect semaphore set: %w", err)
		}
		if !found {
			fmt.Fprintln(out, "Nothing to clean up.")
		}
		return nil
	}

	var errs []error
	removed := 0

	id, err := ipc.RemoveSharedMemory(shmKey)
	switch {
	case err == nil:
		fmt.Fprintf(out, "Found existing shared memory (ID: %d), removing...\n", id)
		removed++
	case !errors.Is(err, ipc.ErrNotExist):
		errs = append(errs, fmt.Errorf("remove shared memory: %w", err))
	}

	id, err = ipc.RemoveSemSet(semKey)
	switch {
	case err == nil:
		fmt.Fprintf(out, "Found existing semaphore set (ID: %d), removing...\n", id)
		removed++
	case !errors.Is(err, ipc.ErrNotExist):
		errs = append(errs, fmt.Errorf("remove semaphore set: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if removed == 0 {
		fmt.Fprintln(out, "Nothing to clean up.")
	} else {
		fmt.Fprintln(out, "Cleanup complete.")
	}
	return nil
}
