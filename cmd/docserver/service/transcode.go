package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/logger"
)

// JobState is the encoder job lifecycle: waiting -> running -> done.
// Done is terminal; a failed job is done with a nil result.
type JobState string

const (
	JobWaiting JobState = "waiting"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
)

// EncoderJob is one in-flight transcode. It lives only in the scheduler's
// registry and is forgotten once its result is published.
type EncoderJob struct {
	ID           string
	SourceNodeID string
	VariantName  string

	mu      sync.Mutex
	state   JobState
	outTime time.Duration
	frame   int64
	result  *models.Blob

	// done is closed exactly once when the job resolves; every waiter
	// observes the same completion.
	done chan struct{}
}

// JobStatus is a point-in-time snapshot of a job
type JobStatus struct {
	ID           string        `json:"id"`
	SourceNodeID string        `json:"source_node_id"`
	State        JobState      `json:"state"`
	OutTime      time.Duration `json:"out_time"`
	Frame        int64         `json:"frame"`
	ResultBlobID *string       `json:"result_blob_id,omitempty"`
}

// Done returns the completion signal. It is closed when the job
// resolves, success or failure.
func (j *EncoderJob) Done() <-chan struct{} {
	return j.done
}

// Result returns the produced variant blob, nil on failure or while the
// job is still running
func (j *EncoderJob) Result() *models.Blob {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Status snapshots the job under its lock
func (j *EncoderJob) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := JobStatus{
		ID:           j.ID,
		SourceNodeID: j.SourceNodeID,
		State:        j.state,
		OutTime:      j.outTime,
		Frame:        j.frame,
	}
	if j.result != nil {
		status.ResultBlobID = &j.result.ID
	}
	return status
}

// ingest applies one progress tick's parsed fields
func (j *EncoderJob) ingest(outTime time.Duration, frame int64, hasFrame bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if outTime > 0 {
		j.outTime = outTime
	}
	if hasFrame {
		j.frame = frame
	}
}

// TranscodeRunner invokes the external transcoding process. The
// production implementation shells out to ffmpeg; tests substitute a
// fake that writes the output file directly.
type TranscodeRunner interface {
	Run(ctx context.Context, inputPath, outputPath, progressURL string, video bool) error
}

// Scheduler coalesces transcode work per source node: any number of
// concurrent callers for one source share a single external process
// invocation and observe the same result.
type Scheduler struct {
	blobs  *BlobStore
	tree   *TreeService
	runner TranscodeRunner
	log    *logger.Logger

	scratchDir string
	baseURL    string

	mu       sync.Mutex
	bySource map[string]*EncoderJob
	byID     map[string]*EncoderJob
}

// NewScheduler creates a transcode scheduler
func NewScheduler(blobs *BlobStore, tree *TreeService, runner TranscodeRunner, scratchDir, baseURL string, log *logger.Logger) *Scheduler {
	return &Scheduler{
		blobs:      blobs,
		tree:       tree,
		runner:     runner,
		log:        log,
		scratchDir: scratchDir,
		baseURL:    baseURL,
		bySource:   make(map[string]*EncoderJob),
		byID:       make(map[string]*EncoderJob),
	}
}

// VariantNameFor maps a source mimetype to its rendition slot
func VariantNameFor(mimetype string) string {
	if strings.HasPrefix(mimetype, "audio/") {
		return models.VariantWebAudio
	}
	return models.VariantWebVideo
}

// ScheduleOrJoin returns the job for a source node, creating and starting
// one if none is in flight. Joining callers share the existing execution.
func (s *Scheduler) ScheduleOrJoin(ctx context.Context, node *models.Node) (*EncoderJob, error) {
	primary, err := s.tree.PrimaryBlob(ctx, node)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if job, ok := s.bySource[node.ID]; ok {
		s.mu.Unlock()
		return job, nil
	}

	job := &EncoderJob{
		ID:           uuid.New().String(),
		SourceNodeID: node.ID,
		VariantName:  VariantNameFor(node.Type),
		state:        JobWaiting,
		done:         make(chan struct{}),
	}
	s.bySource[node.ID] = job
	s.byID[job.ID] = job
	s.mu.Unlock()

	s.log.Info("scheduled transcode", "job_id", job.ID, "node_id", node.ID, "variant", job.VariantName)

	// The job owns its own lifetime: it detaches from the caller's
	// context and runs to completion even if every waiter goes away.
	go s.run(job, primary)

	return job, nil
}

// Job looks a job up by id
func (s *Scheduler) Job(id string) (*EncoderJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	return job, ok
}

// GetReadyStreamOrJob serves a browser-playable rendition: an existing
// variant streams immediately; otherwise the caller gets a (possibly
// joined) job to wait on.
func (s *Scheduler) GetReadyStreamOrJob(ctx context.Context, node *models.Node) (*os.File, *models.Blob, *EncoderJob, error) {
	primary, err := s.tree.PrimaryBlob(ctx, node)
	if err != nil {
		return nil, nil, nil, err
	}

	variant, err := s.blobs.FindVariant(ctx, primary.ID, VariantNameFor(node.Type))
	if err != nil {
		return nil, nil, nil, err
	}

	if variant != nil {
		f, blob, err := s.blobs.StreamOf(ctx, variant.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		return f, blob, nil, nil
	}

	job, err := s.ScheduleOrJoin(ctx, node)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, nil, job, nil
}

// IngestProgress applies one tick of key=value pairs from the external
// process. Returns ErrNotFound for unknown jobs (already deregistered
// ticks are not an error worth surfacing upstream, but the handler
// distinguishes them).
func (s *Scheduler) IngestProgress(jobID string, fields map[string]string) error {
	job, ok := s.Job(jobID)
	if !ok {
		return ErrNotFound
	}

	var outTime time.Duration
	if v, ok := fields["out_time"]; ok {
		outTime = parseOutTime(v)
	}

	var frame int64
	_, hasFrame := fields["frame"]
	if hasFrame {
		frame, _ = strconv.ParseInt(strings.TrimSpace(fields["frame"]), 10, 64)
	}

	job.ingest(outTime, frame, hasFrame)
	return nil
}

// run executes the job body on its own goroutine, off the serving pool
func (s *Scheduler) run(job *EncoderJob, primary *models.Blob) {
	// Jobs are not cancelable once started.
	ctx := context.Background()

	job.mu.Lock()
	job.state = JobRunning
	job.mu.Unlock()

	var result *models.Blob

	inputPath := filepath.Join(s.scratchDir, "transcode-"+job.ID+".in")
	outputPath := filepath.Join(s.scratchDir, "transcode-"+job.ID+".out")

	defer func() {
		// Scratch files go away success or failure.
		os.Remove(inputPath)
		os.Remove(outputPath)

		job.mu.Lock()
		job.state = JobDone
		job.result = result
		job.mu.Unlock()

		// Single-assignment completion: every waiter unblocks here.
		close(job.done)

		s.mu.Lock()
		delete(s.bySource, job.SourceNodeID)
		delete(s.byID, job.ID)
		s.mu.Unlock()

		s.log.Info("transcode finished", "job_id", job.ID, "ok", result != nil)
	}()

	if err := s.stageSource(ctx, primary.ID, inputPath); err != nil {
		s.log.Error("failed to stage transcode source", "job_id", job.ID, "error", err)
		return
	}

	progressURL := fmt.Sprintf("%s/api/v1/jobs/%s/progress", s.baseURL, job.ID)
	video := job.VariantName == models.VariantWebVideo

	if err := s.runner.Run(ctx, inputPath, outputPath, progressURL, video); err != nil {
		// Upstream failure resolves the job to done/nil; callers fall
		// back to the original bytes.
		s.log.Error("transcoder failed", "job_id", job.ID, "error", fmt.Errorf("%w: %v", ErrUpstream, err))
		return
	}

	if _, err := os.Stat(outputPath); err != nil {
		s.log.Error("transcoder produced no output", "job_id", job.ID)
		return
	}

	mimetype := "video/mp4"
	if !video {
		mimetype = "audio/mpeg"
	}

	blob, err := s.blobs.StoreFile(ctx, outputPath, BlobMeta{
		ParentID: &primary.ID,
		Name:     &job.VariantName,
		Mimetype: mimetype,
	})
	if err != nil {
		s.log.Error("failed to store rendition", "job_id", job.ID, "error", err)
		return
	}

	result = blob
}

// stageSource copies the source blob's bytes to a local scratch file
func (s *Scheduler) stageSource(ctx context.Context, blobID, dest string) error {
	src, _, err := s.blobs.StreamOf(ctx, blobID)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}

	_, err = io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to stage source bytes: %w", err)
	}

	return nil
}

// parseOutTime parses ffmpeg's HH:MM:SS.micro elapsed-media-time format
func parseOutTime(v string) time.Duration {
	v = strings.TrimSpace(v)
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0
	}

	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
}
