package logging

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// RotationConfig holds configuration for size-based file rotation.
type RotationConfig struct {
	// MaxSizeMB is the maximum size of the file in megabytes before rotation.
	// A value of 0 disables rotation unless MaxSizeBytes is set.
	MaxSizeMB int
	// MaxSizeBytes overrides MaxSizeMB when positive.
	MaxSizeBytes int64
	// MaxBackups is the number of rotated files to keep.
	// A value of 0 keeps no backups.
	MaxBackups int
	// BackupSuffix names rotated files. With ".old" the newest backup is
	// file.old and older ones file.old.2, file.old.3. Empty means file.1, file.2.
	BackupSuffix string
	// Compress determines whether rotated files are gzip compressed.
	Compress bool
	// OnRotate, if set, returns bytes written at the head of each fresh file.
	OnRotate func() []byte
}

// DefaultRotationConfig returns a RotationConfig with sensible defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		Compress:   false,
	}
}

func (c RotationConfig) maxBytes() int64 {
	if c.MaxSizeBytes > 0 {
		return c.MaxSizeBytes
	}
	return int64(c.MaxSizeMB) * 1024 * 1024
}

// RotatingWriter is an append-only file writer that rotates once the file
// exceeds a size limit. It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	filePath   string
	maxSizeB   int64
	maxBackups int
	suffix     string
	compress   bool
	onRotate   func() []byte

	file        *os.File
	currentSize int64
}

// NewRotatingWriter creates a RotatingWriter appending to filePath.
//
// If the configured size is 0, rotation is disabled and the writer behaves
// like a regular file writer.
func NewRotatingWriter(filePath string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		filePath:   filePath,
		maxSizeB:   config.maxBytes(),
		maxBackups: config.MaxBackups,
		suffix:     config.BackupSuffix,
		compress:   config.Compress,
		onRotate:   config.OnRotate,
	}

	if err := rw.openFile(); err != nil {
		return nil, err
	}

	return rw, nil
}

// openFile opens the file for appending and sets the current size.
// The caller must hold the mutex.
func (rw *RotatingWriter) openFile() error {
	dir := filepath.Dir(rw.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(rw.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	rw.file = file
	rw.currentSize = info.Size()
	return nil
}

// Write implements io.Writer. The file is rotated first if p would push it
// over the size limit.
//
// Several processes may append to the same path. Each write takes an
// exclusive flock on the file, follows the path if another writer rotated
// it, and measures the size on disk rather than this writer's own output.
func (rw *RotatingWriter) Write(p []byte) (n int, err error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}

	locked, err := rw.lockCurrent()
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = unix.Flock(int(locked.Fd()), unix.LOCK_UN)
		if locked != rw.file {
			_ = locked.Close()
		}
	}()

	if rw.maxSizeB > 0 && rw.currentSize > 0 && rw.currentSize+int64(len(p)) > rw.maxSizeB {
		if err := rw.rotate(); err != nil {
			// Keep writing to whatever file is open rather than lose data.
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
		}
	}

	n, err = rw.file.Write(p)
	rw.currentSize += int64(n)
	return n, err
}

// lockCurrent takes the flock on the file currently at filePath, reopening
// first if the path was rotated or removed, and refreshes currentSize from
// disk. The caller must hold the mutex.
func (rw *RotatingWriter) lockCurrent() (*os.File, error) {
	for {
		f := rw.file
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
			return nil, fmt.Errorf("failed to lock log file: %w", err)
		}
		held, herr := f.Stat()
		onDisk, derr := os.Stat(rw.filePath)
		if herr == nil && derr == nil && os.SameFile(held, onDisk) {
			rw.currentSize = onDisk.Size()
			return f, nil
		}

		// Another writer moved the file away; follow the path.
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		if err := rw.openFile(); err != nil {
			return nil, err
		}
		_ = f.Close()
	}
}

// rotate renames the locked file to the newest backup and opens a fresh one.
// The old handle stays open, and so locked, until Write releases it; other
// writers blocked on it then find the path moved and follow it. The caller
// must hold the mutex and the flock.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	rw.rotateBackups()

	backupPath := rw.backupPath(1)
	if err := os.Rename(rw.filePath, backupPath); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if rw.compress {
		go rw.compressFile(backupPath)
	}

	if err := rw.openFile(); err != nil {
		return err
	}
	if rw.onRotate != nil {
		if head := rw.onRotate(); len(head) > 0 {
			n, _ := rw.file.Write(head)
			rw.currentSize += int64(n)
		}
	}
	return nil
}

// rotateBackups shifts backup files and removes the oldest.
// Files are numbered from 1 (newest) to maxBackups (oldest).
func (rw *RotatingWriter) rotateBackups() {
	if rw.maxBackups <= 1 {
		os.Remove(rw.backupPath(1))
		os.Remove(rw.backupPath(1) + ".gz")
		return
	}

	oldestPath := rw.backupPath(rw.maxBackups)
	os.Remove(oldestPath)
	os.Remove(oldestPath + ".gz")

	for i := rw.maxBackups - 1; i >= 1; i-- {
		oldPath := rw.backupPath(i)
		newPath := rw.backupPath(i + 1)

		if _, err := os.Stat(oldPath + ".gz"); err == nil {
			os.Rename(oldPath+".gz", newPath+".gz")
		} else if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}
}

// backupPath returns the path for the backup with the given number.
func (rw *RotatingWriter) backupPath(n int) string {
	if rw.suffix == "" {
		return fmt.Sprintf("%s.%d", rw.filePath, n)
	}
	if n == 1 {
		return rw.filePath + rw.suffix
	}
	return fmt.Sprintf("%s%s.%d", rw.filePath, rw.suffix, n)
}

// compressFile compresses a file using gzip and removes the original.
// Errors are reported to stderr since this runs asynchronously.
func (rw *RotatingWriter) compressFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read log file for compression %s: %v\n", path, err)
		return
	}

	gzPath := path + ".gz"
	gzFile, err := os.Create(gzPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create compressed log file %s: %v\n", gzPath, err)
		return
	}
	defer gzFile.Close()

	gzWriter := gzip.NewWriter(gzFile)
	if _, err := gzWriter.Write(data); err != nil {
		os.Remove(gzPath)
		fmt.Fprintf(os.Stderr, "Warning: failed to write compressed log data to %s: %v\n", gzPath, err)
		return
	}

	if err := gzWriter.Close(); err != nil {
		os.Remove(gzPath)
		fmt.Fprintf(os.Stderr, "Warning: failed to finalize compressed log file %s: %v\n", gzPath, err)
		return
	}

	os.Remove(path)
}

// Sync flushes any buffered data to the underlying file.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}

	return rw.file.Sync()
}

// Close syncs and closes the underlying file. Calling it twice is a no-op.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}

	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	rw.file = nil
	return nil
}

// CurrentSize returns the current size of the file in bytes.
func (rw *RotatingWriter) CurrentSize() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.currentSize
}

// FilePath returns the path to the active file.
func (rw *RotatingWriter) FilePath() string {
	return rw.filePath
}

// BackupPath returns the path of the newest rotated file.
func (rw *RotatingWriter) BackupPath() string {
	return rw.backupPath(1)
}
