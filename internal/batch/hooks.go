package batch

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"downxnat/internal/ledger"
	"downxnat/internal/storage"
)

// Mirror copies a subject directory to object storage.
type Mirror interface {
	MirrorSubject(ctx context.Context, bucket, project, subjectDir string) (storage.MirrorResult, error)
}

// MirrorHook uploads each finished subject to Bucket.
type MirrorHook struct {
	Mirror Mirror
	Bucket string
}

func (h *MirrorHook) Name() string { return "mirror" }

func (h *MirrorHook) AfterSubject(ctx context.Context, res Result) error {
	out, err := h.Mirror.MirrorSubject(ctx, h.Bucket, res.Project, res.Report.Dir)
	if err != nil {
		return err
	}
	log.WithField("subject", res.Report.Label).Debugf("Mirrored %d files, %d unchanged", out.Uploaded, out.Skipped)
	return nil
}

// EntryRecorder stores ledger entries.
type EntryRecorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// LedgerHook records each finished subject in the download ledger.
type LedgerHook struct {
	Ledger EntryRecorder
}

func (h *LedgerHook) Name() string { return "ledger" }

func (h *LedgerHook) AfterSubject(ctx context.Context, res Result) error {
	return h.Ledger.Record(ctx, ledger.Entry{
		Project:          res.Project,
		Subject:          res.Report.Label,
		RunID:            res.RunID,
		Dir:              res.Report.Dir,
		ExperimentsTotal: res.Report.Experiments,
		Downloaded:       len(res.Report.Downloaded),
		Skipped:          len(res.Report.Skipped),
		FinishedAt:       res.FinishedAt,
	})
}

// Publisher writes events keyed by a string.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// SubjectDownloaded is the event published for every finished subject.
type SubjectDownloaded struct {
	RunID       string    `json:"run_id"`
	Project     string    `json:"project"`
	Subject     string    `json:"subject"`
	Directory   string    `json:"directory"`
	Experiments int       `json:"experiments"`
	Downloaded  []string  `json:"downloaded"`
	Skipped     []string  `json:"skipped"`
	FinishedAt  time.Time `json:"finished_at"`
}

// EventHook publishes a SubjectDownloaded event keyed by subject label.
type EventHook struct {
	Publisher Publisher
}

func (h *EventHook) Name() string { return "event" }

func (h *EventHook) AfterSubject(ctx context.Context, res Result) error {
	event := SubjectDownloaded{
		RunID:       res.RunID,
		Project:     res.Project,
		Subject:     res.Report.Label,
		Directory:   res.Report.Dir,
		Experiments: res.Report.Experiments,
		Downloaded:  nonNil(res.Report.Downloaded),
		Skipped:     nonNil(res.Report.Skipped),
		FinishedAt:  res.FinishedAt.UTC(),
	}
	return h.Publisher.Publish(ctx, event.Subject, event)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
