package store

import "time"

// ScanStatus, FaceStatus, TagsStatus, ClipStatus share the same small
// state space.
const (
	StatusPending = "pending"
	StatusScanned = "scanned"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// UploadQueue status values.
const (
	QueuePending     = "pending"
	QueueUploading   = "uploading"
	QueueRateLimited = "rate_limited"
	QueueCompleted   = "completed"
	QueueFailed      = "failed"
)

// MediaItem is the central entity.
type MediaItem struct {
	ID             int64
	FilePath       string
	FileHash       string
	PerceptualHash string

	BlobID       string
	UploadedAt   *time.Time
	IsEncrypted  bool

	MimeType      string
	Width         int
	Height        int
	DurationSec   float64
	SizeBytes     int64
	ThumbnailPath string

	CreatedAt time.Time
	DateTaken *time.Time

	Latitude     *float64
	Longitude    *float64
	CameraMake   string
	CameraModel  string

	IsFavorite  bool
	Rating      int
	IsDeleted   bool
	DeletedAt   *time.Time
	IsArchived  bool
	ArchivedAt  *time.Time
	IsCloudOnly bool

	ScanStatus    string
	FaceStatus    string
	TagsStatus    string
	ClipStatus    string
	ClipEmbedding []float32
}

// Metadata carries the subset of MediaItem fields the ingestion pipeline
// derives before the row exists.
type Metadata struct {
	MimeType    string
	Width       int
	Height      int
	DurationSec float64
	SizeBytes   int64
	DateTaken   *time.Time
	Latitude    *float64
	Longitude   *float64
	CameraMake  string
	CameraModel string
}

type UploadQueueItem struct {
	ID       int64
	FilePath string
	Status   string
	Retries  int
	ErrorMsg string
	AddedAt  time.Time
}

type Album struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type Face struct {
	ID       int64
	MediaID  int64
	X, Y, W, H float64
	Score      float64
	Embedding  []float32
	PersonID   *int64
}

type Person struct {
	ID          int64
	DisplayName string
	CoverFaceID *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Tag struct {
	ID   int64
	Name string
}

type MediaTag struct {
	MediaID    int64
	TagID      int64
	Confidence float64
}

type ConfigEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// MigrationStatus tracks the encryption-migration orchestrator's progress
//. The in-memory copy is authoritative
// whenever any counter is non-zero.
type MigrationStatus struct {
	Running   bool
	Total     int
	Processed int
	Succeeded int
	Failed    int
	LastError string
}
