package model

import (
	"time"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// JobStatus represents job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ResponseFormat selects the encoder used when a job is read back
type ResponseFormat string

const (
	FormatJSON ResponseFormat = "json"
	FormatSRT  ResponseFormat = "srt"
	FormatVTT  ResponseFormat = "vtt"
	FormatText ResponseFormat = "text"
)

// Stage is the coarse progress marker a worker publishes while processing
type Stage string

const (
	StageQueued        Stage = "queued"
	StagePreprocessing Stage = "preprocessing"
	StageDiarizing     Stage = "diarizing"
	StageTranscribing  Stage = "transcribing"
	StageAligning      Stage = "aligning"
	StageEnriching     Stage = "enriching"
	StageFinalizing    Stage = "finalizing"
	StageDone          Stage = "done"
)

var stageOrder = []Stage{
	StageQueued, StagePreprocessing, StageDiarizing, StageTranscribing,
	StageAligning, StageEnriching, StageFinalizing, StageDone,
}

// StageCount is the number of steps between queued and done
var StageCount = len(stageOrder) - 1

// Step returns the position of s in the pipeline, 0 for queued or unknown
func (s Stage) Step() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return 0
}

// Input references the uploaded audio
type Input struct {
	FileName      string  `json:"file_name"`
	ContentType   string  `json:"content_type"`
	Size          int64   `json:"size"`
	StorageKey    string  `json:"storage_key"`
	AudioDuration float64 `json:"audio_duration"`
}

// Params are the caller supplied job parameters
type Params struct {
	ExpectedSpeakers  *int           `json:"expected_speakers,omitempty" validate:"omitempty,min=2,max=10"`
	ResponseFormat    ResponseFormat `json:"response_format" validate:"required,oneof=json srt vtt text"`
	EnableLLMAnalysis bool           `json:"enable_llm_analysis"`
}

// JobError is the failure recorded on a failed job
type JobError struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
}

// Job is one submission tracked from intake to a terminal state
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Input       Input      `json:"input"`
	Params      Params     `json:"params"`
	Result      *Result    `json:"result,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	Progress    Stage      `json:"progress,omitempty"`
	// HeartbeatAt is the last time the claiming worker reported in
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
}

// Claim identifies one worker's hold on a processing job. Requeueing and
// claiming again yields a different claim for the same job.
type Claim struct {
	JobID     string
	Attempt   int
	StartedAt time.Time
}

// Claim returns the hold the job is under. The second value is false when
// the job is not processing.
func (j *Job) Claim() (Claim, bool) {
	if j.Status != JobStatusProcessing || j.StartedAt == nil {
		return Claim{}, false
	}
	return Claim{JobID: j.ID, Attempt: j.Attempts, StartedAt: *j.StartedAt}, true
}

// Holds reports whether c is still the current claim on j
func (c Claim) Holds(j *Job) bool {
	current, ok := j.Claim()
	return ok && current.Attempt == c.Attempt && current.StartedAt.Equal(c.StartedAt)
}

// Supersedes reports whether j has been requeued or claimed again since c.
// The zero claim never held the job, so nothing supersedes it.
func (c Claim) Supersedes(j *Job) bool {
	if c.Attempt == 0 {
		return false
	}
	return j.Status == JobStatusPending || j.Attempts != c.Attempt
}

// LastActive returns the later of the claim time and the last heartbeat.
// The second value is false when the job is not processing.
func (j *Job) LastActive() (time.Time, bool) {
	if j.Status != JobStatusProcessing || j.StartedAt == nil {
		return time.Time{}, false
	}
	if j.HeartbeatAt != nil && j.HeartbeatAt.After(*j.StartedAt) {
		return *j.HeartbeatAt, true
	}
	return *j.StartedAt, true
}

// ProcessingAge returns how long the claiming worker has been silent. The
// second value is false for jobs in any other state.
func (j *Job) ProcessingAge(now time.Time) (time.Duration, bool) {
	active, ok := j.LastActive()
	if !ok {
		return 0, false
	}
	return now.Sub(active), true
}

// Clone returns a deep copy so stores never share mutable state with callers
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.HeartbeatAt != nil {
		t := *j.HeartbeatAt
		c.HeartbeatAt = &t
	}
	if j.Params.ExpectedSpeakers != nil {
		n := *j.Params.ExpectedSpeakers
		c.Params.ExpectedSpeakers = &n
	}
	if j.Result != nil {
		r := *j.Result
		if j.Result.Utterances != nil {
			r.Utterances = make([]Utterance, len(j.Result.Utterances))
			copy(r.Utterances, j.Result.Utterances)
		}
		if j.Result.LLMEnhancements != nil {
			e := *j.Result.LLMEnhancements
			r.LLMEnhancements = &e
		}
		c.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}
