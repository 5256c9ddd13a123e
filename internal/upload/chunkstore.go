package upload

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmylchreest/vidarr/internal/config"
	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/jmylchreest/vidarr/internal/observability"
)

// ChunkStore assembles sequential chunks into one temp file per session.
// Chunk 0 truncates the file, later chunks append; transfer buffering is
// bounded by io.Copy's internal buffer, never a whole chunk in memory.
type ChunkStore struct {
	maxChunkSize int64
	logger       *slog.Logger
}

// NewChunkStore creates a chunk store with the given per-chunk size cap.
func NewChunkStore(maxChunkSize config.ByteSize) *ChunkStore {
	return &ChunkStore{
		maxChunkSize: maxChunkSize.Bytes(),
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger.
func (c *ChunkStore) WithLogger(logger *slog.Logger) *ChunkStore {
	c.logger = observability.WithComponent(logger, "chunkstore")
	return c
}

// WriteChunk streams one chunk to the session's temp file and marks it
// complete, returning the overall progress fraction. Chunks must be
// submitted in index order; an out-of-order chunk would append at the
// wrong offset, and Finalize only detects gaps, not reordering. Writes
// within a session are serialized on the session lock.
func (c *ChunkStore) WriteChunk(session *Session, chunkIndex, totalChunks int, r io.Reader) (float64, error) {
	if chunkIndex < 0 || chunkIndex >= session.TotalChunks || totalChunks != session.TotalChunks {
		return 0, fmt.Errorf("%w: index %d of %d", models.ErrInvalidChunkIndex, chunkIndex, totalChunks)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	flags := os.O_CREATE | os.O_WRONLY
	if chunkIndex == 0 {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(session.TempPath, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening temp file: %w", err)
	}
	defer f.Close()

	start, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seeking temp file: %w", err)
	}
	if chunkIndex == 0 {
		session.bytesWritten = 0
	}

	// Read one byte past the cap so an oversized chunk is detected without
	// buffering it.
	n, err := io.Copy(f, io.LimitReader(r, c.maxChunkSize+1))
	if err != nil || n > c.maxChunkSize {
		// Drop the partial bytes so a retry of this chunk appends at the
		// offset where it started.
		if truncErr := f.Truncate(start); truncErr != nil {
			c.logger.Warn("failed to truncate partial chunk",
				slog.String("path", session.TempPath),
				slog.Int("chunk", chunkIndex),
				slog.Any("error", truncErr),
			)
		}
		if err != nil {
			return 0, fmt.Errorf("writing chunk %d: %w", chunkIndex, err)
		}
		return 0, fmt.Errorf("%w: chunk %d exceeds %d bytes", models.ErrChunkTooLarge, chunkIndex, c.maxChunkSize)
	}

	session.received[chunkIndex] = true
	session.bytesWritten += n
	session.lastActivity = nowFunc()

	return float64(session.completedLocked()) / float64(session.TotalChunks), nil
}

// Finalize verifies all chunks arrived and moves the temp file to its
// permanent location, atomically where the platform allows. Returns the
// assembled file size.
func (c *ChunkStore) Finalize(session *Session, finalPath string) (int64, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	for i, ok := range session.received {
		if !ok {
			return 0, fmt.Errorf("%w: chunk %d missing", models.ErrIncompleteUpload, i)
		}
	}

	stat, err := os.Stat(session.TempPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", models.ErrFileMissing, session.TempPath)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating upload directory: %w", err)
	}

	if err := os.Rename(session.TempPath, finalPath); err != nil {
		// Rename fails across filesystems; fall back to copy-then-delete.
		if copyErr := copyFile(session.TempPath, finalPath); copyErr != nil {
			return 0, fmt.Errorf("moving upload into place: %w", copyErr)
		}
		if rmErr := os.Remove(session.TempPath); rmErr != nil {
			c.logger.Warn("failed to remove temp file after copy",
				slog.String("path", session.TempPath),
				slog.Any("error", rmErr),
			)
		}
	}

	return stat.Size(), nil
}

// Cancel removes the session's temp file. Idempotent.
func (c *ChunkStore) Cancel(session *Session) {
	if err := os.Remove(session.TempPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove temp file",
			slog.String("path", session.TempPath),
			slog.Any("error", err),
		)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
