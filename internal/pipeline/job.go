package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/redump_downloader/internal/catalog"
	"github.com/italolelis/redump_downloader/internal/storage"
)

// Stage is one phase of the pipeline.
type Stage int

const (
	StageResolvingKey Stage = iota
	StageDownloading
	StageExtracting
	StageConverting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageResolvingKey:
		return "resolving_key"
	case StageDownloading:
		return "downloading"
	case StageExtracting:
		return "extracting"
	case StageConverting:
		return "converting"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one end-to-end run of the pipeline for a single selected entry.
// Jobs are exclusively owned by the in-flight run and discarded, success or
// failure, before the next selection is accepted.
type Job struct {
	ID    uuid.UUID
	Entry catalog.Entry
	Key   *storage.KeyRecord
	Stage Stage

	// FailureCause is set when Stage is StageFailed; it carries the
	// originating component's error, never a bare boolean.
	FailureCause error

	// Dir holds every intermediate and final file for this job.
	Dir string
	// OutputPath is the decrypted final artifact.
	OutputPath string

	BytesDone  int64
	TotalBytes int64

	StartedAt time.Time
}

// Event is one element of the job's forward-only progress stream.
type Event struct {
	JobID   uuid.UUID
	Stage   Stage
	Bytes   int64
	Total   int64
	Attempt int
	Delay   time.Duration
	Message string
	Err     error
}
