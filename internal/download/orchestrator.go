// Package download runs search-and-download jobs off the update handling path
// and guarantees that failed jobs leave no files behind.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/m3rciful/songbot/core/logger"
	"github.com/m3rciful/songbot/internal/catalog"
	"github.com/m3rciful/songbot/internal/journal"
)

const (
	// SearchPrefix makes the fetcher resolve a query to its top search result.
	SearchPrefix = "ytsearch1:"

	// AudioExt is the extension of transcoded audio files.
	AudioExt = ".mp3"
	// AudioCodec and AudioQuality describe the audio post-processing.
	AudioCodec   = "mp3"
	AudioQuality = "192"

	audioSelector = "bestaudio/best"
	videoSelector = "bestvideo+bestaudio/best"
)

// Postprocess asks the fetcher to extract and transcode the audio track.
type Postprocess struct {
	ExtractAudio bool
	Codec        string
	Quality      string
}

// FetchRequest is what the media fetcher receives.
type FetchRequest struct {
	Search         string
	Selector       string
	OutputTemplate string
	NoPlaylist     bool
	CookiesFile    string
	Postprocess    *Postprocess
}

// Fetcher searches, downloads and optionally transcodes media, returning the
// path of the produced file.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	Dir         string
	CookiesFile string
	// MaxParallel bounds concurrently running fetches; <= 0 means 2.
	MaxParallel int
	// Timeout bounds a single fetch; 0 means no limit.
	Timeout time.Duration
}

// Orchestrator turns Requests into Jobs.
type Orchestrator struct {
	fetcher Fetcher
	journal journal.Journal
	cfg     Config
	sem     *semaphore.Weighted

	active atomic.Int64

	mu    sync.Mutex
	stems map[string]struct{}

	newID func() string
	now   func() time.Time
}

// New creates the download directory and returns an Orchestrator.
func New(f Fetcher, j journal.Journal, cfg Config) (*Orchestrator, error) {
	if f == nil {
		return nil, errors.New("download: nil fetcher")
	}
	if j == nil {
		j = journal.Nop{}
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = "downloads"
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 2
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("download: create dir %s: %w", cfg.Dir, err)
	}
	return &Orchestrator{
		fetcher: f,
		journal: j,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxParallel)),
		stems:   make(map[string]struct{}),
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}, nil
}

// Dir returns the download directory.
func (o *Orchestrator) Dir() string { return o.cfg.Dir }

// Active reports how many jobs are currently fetching.
func (o *Orchestrator) Active() int64 { return o.active.Load() }

// Run submits a job and waits for its result.
func (o *Orchestrator) Run(ctx context.Context, query string, format catalog.Format) (string, error) {
	return o.Submit(ctx, Request{Query: query, Format: format}).Wait(ctx)
}

// Submit starts a job on its own goroutine and returns immediately.
// The job stops early only if ctx is cancelled.
func (o *Orchestrator) Submit(ctx context.Context, req Request) *Job {
	id := o.newID()
	stem := jobStem(req.Query, id)
	job := newJob(id, req, stem, o.now())
	ctx = logger.WithJob(ctx, id)

	cookies, credErr := o.Credentials()
	job.CredentialsErr = credErr

	o.trackStem(stem, true)
	o.record(ctx, job)
	logger.Info(ctx, "download", "job.submitted",
		slog.String("query", logger.SanitizeLimit(req.Query, 128)),
		slog.String("format", string(req.Format)),
		slog.Bool("cookies", cookies != ""),
	)

	go o.run(ctx, job, cookies)
	return job
}

func (o *Orchestrator) run(ctx context.Context, job *Job, cookies string) {
	start := time.Now()
	// Registered first so waiters observe released slots and journal writes.
	defer close(job.done)
	defer o.trackStem(job.stem, false)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(ctx, job, err, start)
		return
	}
	defer o.sem.Release(1)

	o.active.Add(1)
	defer o.active.Add(-1)

	job.setState(StateRunning)
	o.record(ctx, job)

	path, err := o.fetch(ctx, job, cookies)
	if err == nil {
		path, err = o.resolve(job, path)
	}
	if err != nil {
		o.fail(ctx, job, err, start)
		return
	}

	var size int64
	if fi, statErr := os.Stat(path); statErr == nil {
		size = fi.Size()
	}
	job.finish(path, size, nil)
	o.record(ctx, job)
	logger.Info(ctx, "download", "job.succeeded",
		slog.String("status", "ok"),
		slog.String("path", path),
		slog.Int64("size_bytes", size),
		slog.Duration("duration", time.Since(start)),
	)
}

func (o *Orchestrator) fetch(ctx context.Context, job *Job, cookies string) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panic: %v", r)
		}
	}()

	fetchCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}
	return o.fetcher.Fetch(fetchCtx, o.fetchRequest(job, cookies))
}

func (o *Orchestrator) fetchRequest(job *Job, cookies string) FetchRequest {
	req := FetchRequest{
		Search:         SearchPrefix + job.Request.Query,
		Selector:       videoSelector,
		OutputTemplate: filepath.Join(o.cfg.Dir, job.stem+".%(ext)s"),
		NoPlaylist:     true,
		CookiesFile:    cookies,
	}
	if job.Request.Format == catalog.FormatAudio {
		req.Selector = audioSelector
		req.Postprocess = &Postprocess{
			ExtractAudio: true,
			Codec:        AudioCodec,
			Quality:      AudioQuality,
		}
	}
	return req
}

// resolve checks that the reported file exists, falling back to whatever
// complete file carries the job stem.
func (o *Orchestrator) resolve(job *Job, reported string) (string, error) {
	audio := job.Request.Format == catalog.FormatAudio
	if audio {
		reported = replaceExt(reported, AudioExt)
	}
	if reported != "" && isRegular(reported) {
		return reported, nil
	}

	matches, err := filepath.Glob(filepath.Join(o.cfg.Dir, job.stem+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if isPartial(m) || !isRegular(m) {
			continue
		}
		if audio && !strings.EqualFold(filepath.Ext(m), AudioExt) {
			continue
		}
		return m, nil
	}
	return "", ErrNoOutput
}

func (o *Orchestrator) fail(ctx context.Context, job *Job, cause error, start time.Time) {
	removed := o.cleanup(job.stem)
	err := &FetchError{Query: job.Request.Query, Err: cause}
	job.finish("", 0, err)
	o.record(ctx, job)
	logger.Warn(ctx, "download", "job.failed",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(cause.Error(), 256)),
		slog.String("err_code", err.Code()),
		slog.Int("removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
}

// cleanup removes every artifact of a job and returns how many files went away.
func (o *Orchestrator) cleanup(stem string) int {
	matches, err := filepath.Glob(filepath.Join(o.cfg.Dir, stem+".*"))
	if err != nil {
		return 0
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed
}

// Remove deletes a delivered file. A missing file is not an error.
func (o *Orchestrator) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("download: remove %s: %w", path, err)
	}
	return nil
}

// Credentials returns the cookies file to pass to the fetcher, or a
// *CredentialsMissingError when it is not configured or absent.
func (o *Orchestrator) Credentials() (string, error) {
	path := strings.TrimSpace(o.cfg.CookiesFile)
	if path == "" {
		return "", &CredentialsMissingError{Path: path}
	}
	if !isRegular(path) {
		return "", &CredentialsMissingError{Path: path}
	}
	return path, nil
}

func (o *Orchestrator) record(ctx context.Context, job *Job) {
	if err := o.journal.Record(context.WithoutCancel(ctx), job.entry(o.now())); err != nil {
		logger.Warn(ctx, "journal", "journal.record",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (o *Orchestrator) trackStem(stem string, add bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if add {
		o.stems[stem] = struct{}{}
		return
	}
	delete(o.stems, stem)
}

func (o *Orchestrator) ownedByActiveJob(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for stem := range o.stems {
		if strings.HasPrefix(name, stem+".") {
			return true
		}
	}
	return false
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
