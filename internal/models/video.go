package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// VideoStatus represents the externally-visible lifecycle state of a video.
type VideoStatus string

const (
	// VideoStatusUploading indicates chunks are still being received.
	VideoStatusUploading VideoStatus = "uploading"
	// VideoStatusProcessing indicates the transcoding pipeline is running.
	VideoStatusProcessing VideoStatus = "processing"
	// VideoStatusReady indicates at least one quality transcoded and the
	// master playlist is on disk.
	VideoStatusReady VideoStatus = "ready"
	// VideoStatusFailed indicates the pipeline finished with zero usable
	// qualities or an unrecoverable error.
	VideoStatusFailed VideoStatus = "failed"
)

// CanTransitionTo reports whether a status change is allowed by the lifecycle
// uploading -> processing -> {ready | failed}. Terminal states are re-entered
// only through a fresh transcode run, which goes back through processing.
func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	switch s {
	case VideoStatusUploading:
		return next == VideoStatusProcessing
	case VideoStatusProcessing:
		return next == VideoStatusReady || next == VideoStatusFailed
	case VideoStatusReady, VideoStatusFailed:
		return next == VideoStatusProcessing
	default:
		return false
	}
}

// IsTerminal returns true for states the pipeline never leaves on its own.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusReady || s == VideoStatusFailed
}

// StringList is a string slice stored as a JSON array column.
type StringList []string

// Value implements driver.Valuer for database storage.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}

	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("scanning string list: %w", err)
	}
	return nil
}

// Contains reports whether the list contains s.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Video is the durable record for one media asset. It is created at
// upload-init and mutated exclusively through the upload and transcoding
// services while processing is in flight.
type Video struct {
	BaseModel

	// Title is the display title, defaulting to the original filename.
	Title string `gorm:"not null;size:255" json:"title"`

	// Description is free-form uploader-provided text.
	Description string `gorm:"size:4096" json:"description,omitempty"`

	// OriginalFilename is the client-side filename at upload time.
	OriginalFilename string `gorm:"size:255" json:"original_filename,omitempty"`

	// Tags are uploader-provided labels used for suggestions.
	Tags StringList `gorm:"type:text" json:"tags,omitempty"`

	// UploaderID identifies the uploading user in the external system.
	UploaderID string `gorm:"size:100;index" json:"uploader_id,omitempty"`

	// UploaderName is a display name snapshot for the uploader.
	UploaderName string `gorm:"size:255" json:"uploader_name,omitempty"`

	// Status is the lifecycle state, see VideoStatus.
	Status VideoStatus `gorm:"not null;default:'uploading';size:20;index" json:"status"`

	// ProcessingProgress is a 0-100 hint while Status is processing.
	ProcessingProgress int `gorm:"default:0" json:"processing_progress"`

	// ProcessingError holds a human-readable reason when Status is failed.
	ProcessingError string `gorm:"size:4096" json:"processing_error,omitempty"`

	// UploadPath is the directory holding the finalized original file.
	UploadPath string `gorm:"size:1024" json:"upload_path,omitempty"`

	// HLSPath is the directory holding segmented output and playlists.
	HLSPath string `gorm:"size:1024" json:"hls_path,omitempty"`

	// ThumbnailPath is the directory holding thumbnail images.
	ThumbnailPath string `gorm:"size:1024" json:"thumbnail_path,omitempty"`

	// MasterPlaylistURL is the playback entry point once Status is ready.
	MasterPlaylistURL string `gorm:"size:1024" json:"master_playlist_url,omitempty"`

	// ThumbnailURL points at the current thumbnail image.
	ThumbnailURL string `gorm:"size:1024" json:"thumbnail_url,omitempty"`

	// AvailableQualities lists quality labels that transcoded successfully.
	AvailableQualities StringList `gorm:"type:text" json:"available_qualities,omitempty"`

	// FileSize is the original file size in bytes, set after probing.
	FileSize int64 `json:"file_size,omitempty"`

	// DurationSeconds is the probed media duration.
	DurationSeconds int `json:"duration_seconds,omitempty"`

	// Width and Height are the probed source dimensions.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Views and Likes are engagement counters maintained for the external
	// metadata sink.
	Views int64 `gorm:"default:0" json:"views"`
	Likes int64 `gorm:"default:0" json:"likes"`

	// UploadedAt is when the upload was initialized.
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`

	// ProcessedAt is when the pipeline reached a terminal state successfully.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// TableName returns the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// AddQuality records a successfully transcoded quality label, ignoring
// duplicates.
func (v *Video) AddQuality(label string) {
	if v.AvailableQualities.Contains(label) {
		return
	}
	v.AvailableQualities = append(v.AvailableQualities, label)
}

// Validate checks the video record for consistency.
func (v *Video) Validate() error {
	if v.Title == "" {
		return ErrTitleRequired
	}
	switch v.Status {
	case VideoStatusUploading, VideoStatusProcessing, VideoStatusReady, VideoStatusFailed:
	default:
		return fmt.Errorf("invalid video status: %q", v.Status)
	}
	return nil
}
