// Package batch downloads every subject of a project into one target
// directory, one subject after another, and runs the configured hooks
// after each subject.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"downxnat/internal/download"
	"downxnat/internal/metrics"
)

// LockFile is created in the target directory while a run holds it.
const LockFile = ".downxnat.lock"

var (
	// ErrLocked is returned when another run holds the target directory.
	ErrLocked = errors.New("target directory is locked by another run")
	// ErrSubjectsFailed is returned by runs that continued past failures.
	ErrSubjectsFailed = errors.New("some subjects failed")
)

// Source lists and loads the subjects of a project.
type Source interface {
	SubjectLabels(ctx context.Context, project string) ([]string, error)
	Subject(ctx context.Context, project, label string) (download.Subject, error)
}

// Result is handed to hooks after a subject was written to disk.
type Result struct {
	RunID      string
	Project    string
	Report     *download.Report
	FinishedAt time.Time
}

// Hook runs after each successfully downloaded subject. An error counts as
// a failure of that subject.
type Hook interface {
	Name() string
	AfterSubject(ctx context.Context, res Result) error
}

// Failure records a subject that could not be completed.
type Failure struct {
	Subject string
	Err     error
}

// Summary describes a run.
type Summary struct {
	RunID     string
	Project   string
	Dir       string
	Started   time.Time
	Finished  time.Time
	Completed []*download.Report
	Failed    []Failure
}

// Runner downloads the subjects of a project.
type Runner struct {
	Source Source
	// Subjects restricts the run to these labels, in this order. Empty means
	// every subject of the project.
	Subjects []string
	Verbose  bool
	Progress download.ProgressFunc
	Hooks    []Hook
	// Metrics is optional.
	Metrics *metrics.Recorder
	// ContinueOnError keeps going after a failed subject. By default the
	// first failure ends the run.
	ContinueOnError bool

	now   func() time.Time
	runID func() string
}

// Run creates targetDir if needed, locks it and downloads the subjects of
// project into it. The summary is returned even when the run fails.
func (r *Runner) Run(ctx context.Context, project, targetDir string) (*Summary, error) {
	summary := &Summary{
		RunID:   r.newRunID(),
		Project: project,
		Dir:     targetDir,
		Started: r.clock(),
	}
	defer func() {
		summary.Finished = r.clock()
		if r.Metrics != nil {
			r.Metrics.RunFinished(summary.Finished)
		}
	}()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return summary, fmt.Errorf("create target directory: %w", err)
	}
	lock := flock.New(filepath.Join(targetDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("lock %s: %w", targetDir, err)
	}
	if !locked {
		return summary, fmt.Errorf("%s: %w", targetDir, ErrLocked)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("Failed to release lock on %s: %v", targetDir, err)
		}
	}()

	labels := r.Subjects
	if len(labels) == 0 {
		labels, err = r.Source.SubjectLabels(ctx, project)
		if err != nil {
			return summary, fmt.Errorf("list subjects of %s: %w", project, err)
		}
	}
	logger := log.WithFields(log.Fields{"run_id": summary.RunID, "project": project})
	logger.Infof("Downloading %d subjects into %s", len(labels), targetDir)

	for i, label := range labels {
		logger.Debugf("Subject %d of %d: %s", i+1, len(labels), label)
		report, err := r.runSubject(ctx, summary.RunID, project, label, targetDir)
		if err != nil {
			if r.Metrics != nil {
				r.Metrics.SubjectFailed()
			}
			if !r.ContinueOnError {
				return summary, err
			}
			logger.WithField("subject", label).Errorf("Subject failed: %v", err)
			summary.Failed = append(summary.Failed, Failure{Subject: label, Err: err})
			continue
		}
		if r.Metrics != nil {
			r.Metrics.SubjectDone(len(report.Downloaded), len(report.Skipped))
		}
		summary.Completed = append(summary.Completed, report)
	}

	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("%d of %d: %w", len(summary.Failed), len(labels), ErrSubjectsFailed)
	}
	return summary, nil
}

func (r *Runner) runSubject(ctx context.Context, runID, project, label, targetDir string) (*download.Report, error) {
	subject, err := r.Source.Subject(ctx, project, label)
	if err != nil {
		return nil, fmt.Errorf("load subject %s: %w", label, err)
	}
	report, err := download.DownloadSubject(ctx, subject, targetDir, r.Verbose, r.Progress)
	if err != nil {
		return nil, fmt.Errorf("download subject %s: %w", label, err)
	}
	res := Result{RunID: runID, Project: project, Report: report, FinishedAt: r.clock()}
	for _, h := range r.Hooks {
		if err := h.AfterSubject(ctx, res); err != nil {
			return report, fmt.Errorf("%s hook for subject %s: %w", h.Name(), label, err)
		}
	}
	return report, nil
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Runner) newRunID() string {
	if r.runID != nil {
		return r.runID()
	}
	return uuid.NewString()
}
