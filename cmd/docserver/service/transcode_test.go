package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/docvault/docvault/cmd/docserver/models"
)

// fakeTranscodeRunner writes fixed output bytes, optionally blocking
// until released so tests can observe in-flight jobs
type fakeTranscodeRunner struct {
	mu      sync.Mutex
	calls   int
	output  []byte
	fail    bool
	release chan struct{}
}

func (f *fakeTranscodeRunner) Run(ctx context.Context, inputPath, outputPath, progressURL string, video bool) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.fail {
		return errors.New("encoder exploded")
	}
	return os.WriteFile(outputPath, f.output, 0o644)
}

func (f *fakeTranscodeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type schedulerFixture struct {
	scheduler *Scheduler
	tree      *TreeService
	blobs     *BlobStore
	runner    *fakeTranscodeRunner
	source    *models.Node
}

func newSchedulerFixture(t *testing.T, mimetype string, runner *fakeTranscodeRunner) *schedulerFixture {
	t.Helper()

	fx := newTreeFixture(t, nil)
	ctx := context.Background()

	source, err := fx.tree.CreateFile(ctx, fx.root.ID, "clip", mimetype, "alice", bytes.NewReader([]byte("raw media bytes")))
	require.NoError(t, err)

	scheduler := NewScheduler(fx.blobs, fx.tree, runner, t.TempDir(), "http://localhost:8080", testLogger())

	return &schedulerFixture{
		scheduler: scheduler,
		tree:      fx.tree,
		blobs:     fx.blobs,
		runner:    runner,
		source:    source,
	}
}

func waitDone(t *testing.T, job *EncoderJob) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

func TestTranscodeProducesVariant(t *testing.T) {
	runner := &fakeTranscodeRunner{output: []byte("mp4 rendition")}
	fx := newSchedulerFixture(t, "video/quicktime", runner)
	ctx := context.Background()

	job, err := fx.scheduler.ScheduleOrJoin(ctx, fx.source)
	require.NoError(t, err)
	waitDone(t, job)

	result := job.Result()
	require.NotNil(t, result)
	assert.Equal(t, "video/mp4", result.Mimetype)

	f, blob, err := fx.blobs.StreamOf(ctx, result.ID)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "mp4 rendition", string(data))

	// The rendition occupies the source's webvideo slot
	variant, err := fx.blobs.FindVariant(ctx, *fx.source.BlobID, models.VariantWebVideo)
	require.NoError(t, err)
	require.NotNil(t, variant)
	assert.Equal(t, blob.ID, variant.ID)
}

func TestConcurrentRequestsShareOneJob(t *testing.T) {
	runner := &fakeTranscodeRunner{output: []byte("out"), release: make(chan struct{})}
	fx := newSchedulerFixture(t, "video/quicktime", runner)
	ctx := context.Background()

	first, err := fx.scheduler.ScheduleOrJoin(ctx, fx.source)
	require.NoError(t, err)
	second, err := fx.scheduler.ScheduleOrJoin(ctx, fx.source)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "joiners share the in-flight job")

	close(runner.release)
	waitDone(t, first)

	assert.Equal(t, 1, runner.callCount(), "exactly one encoder invocation")
	assert.NotNil(t, first.Result())
	assert.NotNil(t, second.Result())
}

func TestFailedJobResolvesWithNilResult(t *testing.T) {
	runner := &fakeTranscodeRunner{fail: true}
	fx := newSchedulerFixture(t, "video/quicktime", runner)

	job, err := fx.scheduler.ScheduleOrJoin(context.Background(), fx.source)
	require.NoError(t, err)
	waitDone(t, job)

	assert.Nil(t, job.Result())
	assert.Equal(t, JobDone, job.Status().State)

	// The failed job deregisters; a retry schedules fresh
	require.Eventually(t, func() bool {
		_, found := fx.scheduler.Job(job.ID)
		return !found
	}, time.Second, 10*time.Millisecond)
}

func TestGetReadyStreamOrJobServesExistingVariant(t *testing.T) {
	runner := &fakeTranscodeRunner{output: []byte("encoded")}
	fx := newSchedulerFixture(t, "audio/flac", runner)
	ctx := context.Background()

	// First request schedules
	f, _, job, err := fx.scheduler.GetReadyStreamOrJob(ctx, fx.source)
	require.NoError(t, err)
	assert.Nil(t, f)
	require.NotNil(t, job)
	waitDone(t, job)

	// Second request streams without touching the encoder again
	f, blob, job, err := fx.scheduler.GetReadyStreamOrJob(ctx, fx.source)
	require.NoError(t, err)
	require.NotNil(t, f)
	defer f.Close()
	assert.Nil(t, job)
	assert.Equal(t, "audio/mpeg", blob.Mimetype)
	assert.Equal(t, 1, runner.callCount())
}

func TestIngestProgressUpdatesStatus(t *testing.T) {
	runner := &fakeTranscodeRunner{output: []byte("x"), release: make(chan struct{})}
	fx := newSchedulerFixture(t, "video/quicktime", runner)

	job, err := fx.scheduler.ScheduleOrJoin(context.Background(), fx.source)
	require.NoError(t, err)

	err = fx.scheduler.IngestProgress(job.ID, map[string]string{
		"out_time": "00:01:30.500000",
		"frame":    "2700",
		"progress": "continue",
	})
	require.NoError(t, err)

	status := job.Status()
	assert.Equal(t, 90*time.Second+500*time.Millisecond, status.OutTime)
	assert.Equal(t, int64(2700), status.Frame)

	close(runner.release)
	waitDone(t, job)
}

func TestIngestProgressUnknownJob(t *testing.T) {
	runner := &fakeTranscodeRunner{output: []byte("x")}
	fx := newSchedulerFixture(t, "video/quicktime", runner)

	err := fx.scheduler.IngestProgress("no-such-job", map[string]string{"progress": "continue"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestVariantNameFor(t *testing.T) {
	assert.Equal(t, models.VariantWebAudio, VariantNameFor("audio/flac"))
	assert.Equal(t, models.VariantWebVideo, VariantNameFor("video/quicktime"))
	assert.Equal(t, models.VariantWebVideo, VariantNameFor("application/octet-stream"))
}

func TestParseOutTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"00:00:00.000000", 0},
		{"00:01:30.500000", 90*time.Second + 500*time.Millisecond},
		{"01:00:00.000000", time.Hour},
		{" 00:00:10.000000 ", 10 * time.Second},
		{"garbage", 0},
		{"1:2", 0},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, parseOutTime(tc.in), "input %q", tc.in)
	}
}
