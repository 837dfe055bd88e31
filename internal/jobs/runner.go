package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"posterd/internal/domain"
)

// ThemeLookup resolves display metadata for a theme identifier. The
// runner consults it only to enrich gallery entries, never to alter
// what gets rendered.
type ThemeLookup interface {
	Get(id string) (domain.Theme, bool)
}

// GalleryRecorder receives completed, gallery-opted-in posters.
type GalleryRecorder interface {
	Add(ctx context.Context, entry domain.GalleryEntry) error
}

// RunnerConfig wires the external renderer invocation.
type RunnerConfig struct {
	Bin       string        // interpreter or standalone binary, e.g. "python3"
	Script    string        // renderer entry point, empty when Bin runs standalone
	WorkDir   string        // renderer checkout the process starts in
	OutputDir string        // poster artifacts land here, keyed by job id
	CacheDir  string        // map-data cache handed to the renderer, optional
	Timeout   time.Duration // wall-clock ceiling per render, 0 disables it
}

// Runner drives one external render per job, translating the process's
// stdout into store updates and its exit condition into the terminal
// state. The exit code alone decides success; stderr is advisory
// failure detail.
type Runner struct {
	store   *Store
	gallery GalleryRecorder
	themes  ThemeLookup
	logger  zerolog.Logger
	cfg     RunnerConfig

	// command is swapped in tests to run a scripted fake renderer.
	command func(ctx context.Context, name string, arg ...string) *exec.Cmd

	wg sync.WaitGroup
}

// NewRunner wires a runner against the store it reports into.
func NewRunner(store *Store, gallery GalleryRecorder, themes ThemeLookup, logger zerolog.Logger, cfg RunnerConfig) *Runner {
	return &Runner{
		store:   store,
		gallery: gallery,
		themes:  themes,
		logger:  logger,
		cfg:     cfg,
		command: exec.CommandContext,
	}
}

// Launch starts the render in its own goroutine and returns
// immediately. A deferred guard turns any exit of the run that left the
// job non-terminal, panics included, into a failed transition, so an
// external-process failure can never go unreported to the store.
func (r *Runner) Launch(ctx context.Context, jobID string, req domain.PosterRequest) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.ensureTerminal(jobID)
		r.run(ctx, jobID, req)
	}()
}

// Wait blocks until every in-flight render has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// OutputPath returns where the artifact for a job is written.
func (r *Runner) OutputPath(jobID string) string {
	return filepath.Join(r.cfg.OutputDir, jobID+".png")
}

func (r *Runner) ensureTerminal(jobID string) {
	if v := recover(); v != nil {
		r.logger.Error().Str("job_id", jobID).Interface("panic", v).Msg("render: recovered panic")
	}
	if job, ok := r.store.Get(jobID); !ok || job.Status.Terminal() {
		return
	}
	r.fail(jobID, "render ended unexpectedly")
}

func (r *Runner) run(ctx context.Context, jobID string, req domain.PosterRequest) {
	status := domain.JobStatusProcessing
	progress := 5
	message := "starting"
	r.store.Update(jobID, Update{Status: &status, Progress: &progress, Message: &message})

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	outPath := r.OutputPath(jobID)
	cmd := r.command(ctx, r.cfg.Bin, r.renderArgs(req, outPath)...)
	if r.cfg.WorkDir != "" {
		cmd.Dir = r.cfg.WorkDir
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.fail(jobID, fmt.Sprintf("start renderer: %v", err))
		return
	}
	if err := cmd.Start(); err != nil {
		r.fail(jobID, fmt.Sprintf("start renderer: %v", err))
		return
	}
	r.logger.Info().Str("job_id", jobID).Str("city", req.City).Str("theme", req.Theme).Msg("render: started")

	// Keyword milestones only ever move progress forward; an explicit
	// percentage from the renderer is applied as-is.
	last := progress
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		milestone, ok := ClassifyLine(scanner.Text())
		if !ok {
			continue
		}
		if !milestone.Explicit && milestone.Progress <= last {
			continue
		}
		last = milestone.Progress
		upd := Update{Progress: &milestone.Progress}
		if milestone.Message != "" {
			upd.Message = &milestone.Message
		}
		r.store.Update(jobID, upd)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("render: stdout scan interrupted")
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = fmt.Sprintf("renderer exited: %v", err)
		}
		r.fail(jobID, detail)
		return
	}

	// The gallery entry is recorded before the completion update, so
	// anyone reacting to the completed snapshot can rely on it.
	if req.AddToGallery {
		r.recordGallery(jobID, req)
	}

	status = domain.JobStatusCompleted
	progress = 100
	message = "poster ready"
	r.store.Update(jobID, Update{
		Status:     &status,
		Progress:   &progress,
		Message:    &message,
		ResultFile: &outPath,
	})
	r.logger.Info().Str("job_id", jobID).Str("file", outPath).Msg("render: completed")
}

func (r *Runner) fail(jobID, detail string) {
	status := domain.JobStatusFailed
	message := "render failed"
	r.store.Update(jobID, Update{Status: &status, Message: &message, Error: &detail})
	r.logger.Error().Str("job_id", jobID).Str("detail", detail).Msg("render: failed")
}

// renderArgs builds the renderer argv 1:1 from the request.
func (r *Runner) renderArgs(req domain.PosterRequest, outPath string) []string {
	args := make([]string, 0, 16)
	if r.cfg.Script != "" {
		args = append(args, r.cfg.Script)
	}
	args = append(args,
		"--location", req.City,
		"--country", req.Country,
		"--theme", req.Theme,
		"--output", outPath,
	)
	if req.State != "" {
		args = append(args, "--state", req.State)
	}
	if req.Size != "" && req.Size != "auto" {
		args = append(args, "--size", req.Size)
	}
	if req.Radius > 0 {
		args = append(args, "--radius", strconv.Itoa(req.Radius))
	}
	if r.cfg.CacheDir != "" {
		args = append(args, "--cache-dir", r.cfg.CacheDir)
	}
	return args
}

func (r *Runner) recordGallery(jobID string, req domain.PosterRequest) {
	if r.gallery == nil {
		return
	}
	var theme domain.Theme
	if r.themes != nil {
		theme, _ = r.themes.Get(req.Theme)
	}
	if theme.Name == "" {
		theme.Name = req.Theme
	}
	if theme.Background == "" {
		theme.Background = "#FFFFFF"
	}
	if theme.Text == "" {
		theme.Text = "#000000"
	}
	entry := domain.GalleryEntry{
		JobID:      jobID,
		Location:   galleryLabel(req),
		ThemeID:    req.Theme,
		ThemeName:  theme.Name,
		Background: theme.Background,
		Text:       theme.Text,
		CreatedAt:  time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.gallery.Add(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("render: gallery entry not recorded")
	}
}

// galleryLabel formats the public location label. City and subdivision
// are title-cased; the country is shown as submitted since codes like
// "USA" must keep their casing.
func galleryLabel(req domain.PosterRequest) string {
	caser := cases.Title(language.Und)
	label := caser.String(req.City)
	if req.State != "" {
		label += ", " + caser.String(req.State)
	}
	return label + ", " + req.Country
}
