package models

import "errors"

// Validation errors surfaced synchronously to upload callers.
var (
	// ErrTitleRequired indicates a required title field is empty.
	ErrTitleRequired = errors.New("title is required")

	// ErrUnsupportedExtension indicates the filename extension is not in the allow-list.
	ErrUnsupportedExtension = errors.New("file type not allowed")

	// ErrFileTooLarge indicates the declared size exceeds the configured maximum.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidChunkIndex indicates a chunk index outside [0, totalChunks).
	ErrInvalidChunkIndex = errors.New("invalid chunk index")

	// ErrChunkTooLarge indicates a chunk body exceeding the per-chunk cap.
	ErrChunkTooLarge = errors.New("chunk exceeds maximum chunk size")

	// ErrSessionNotFound indicates an unknown or expired upload session.
	ErrSessionNotFound = errors.New("upload session not found or expired")

	// ErrUploadInProgress indicates another active session already owns the video.
	ErrUploadInProgress = errors.New("an upload for this video is already in progress")

	// ErrIncompleteUpload indicates finalize was called before all chunks arrived.
	ErrIncompleteUpload = errors.New("upload is missing one or more chunks")

	// ErrFileMissing indicates the session's temp file vanished from disk.
	ErrFileMissing = errors.New("upload file not found")
)

// Resource exhaustion errors; callers may retry later.
var (
	// ErrInsufficientStorage indicates the free-space reserve would be violated.
	ErrInsufficientStorage = errors.New("not enough disk space")

	// ErrQueueFull indicates the transcode admission queue rejected the job.
	ErrQueueFull = errors.New("transcode queue is full")
)

// State errors raised by the pipeline and video store.
var (
	// ErrVideoNotFound indicates the video record does not exist.
	ErrVideoNotFound = errors.New("video not found")

	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid video status transition")
)
