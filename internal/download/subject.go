// Package download lays a subject's experiments and metadata out on disk:
//
//	{target}/{subject label}/            experiment archives, unpacked
//	{target}/{subject label}/clinical_data.json
//
// Experiments are handled one at a time, in the order the subject lists them.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	log "github.com/sirupsen/logrus"

	"downxnat/pkg/metadata"
)

// MetadataFile is the name of the subject metadata snapshot.
const MetadataFile = "clinical_data.json"

// ErrInvalidLabel is returned for labels that cannot be used as a directory name.
var ErrInvalidLabel = errors.New("invalid subject label")

// Experiment is one imaging session or assessment owned by a subject.
type Experiment interface {
	Label() string
}

// ArchiveDownloader is the optional capability of an experiment to fetch its
// own archive and unpack it into dir. Experiments without it are skipped.
type ArchiveDownloader interface {
	DownloadDir(ctx context.Context, dir string, verbose bool) error
}

// Subject is a participant record together with its experiments.
type Subject interface {
	Label() string
	// Experiments returns the subject's experiments in download order.
	Experiments() []Experiment
	// FullData returns the complete metadata record of the subject.
	FullData() metadata.Value
	Logger() log.FieldLogger
}

// ProgressFunc receives a human-readable status line before each experiment.
type ProgressFunc func(msg string)

// Report summarises what DownloadSubject did.
type Report struct {
	Label        string
	Dir          string
	Experiments  int
	Downloaded   []string
	Skipped      []string
	MetadataPath string
}

// DownloadSubject creates targetDir/<label>, downloads every experiment that
// supports it into that directory and then writes the sanitized subject
// metadata to clinical_data.json, replacing any previous copy.
//
// targetDir must already exist. Errors other than a missing download
// capability are returned as they occur; experiments already unpacked are
// left in place.
func DownloadSubject(ctx context.Context, subject Subject, targetDir string, verbose bool, progress ProgressFunc) (*Report, error) {
	label := subject.Label()
	if err := validateLabel(label); err != nil {
		return nil, err
	}
	subjectDir := filepath.Join(targetDir, label)
	if err := ensureDir(subjectDir); err != nil {
		return nil, err
	}

	experiments := subject.Experiments()
	report := &Report{
		Label:       label,
		Dir:         subjectDir,
		Experiments: len(experiments),
	}

	for n, experiment := range experiments {
		if progress != nil {
			progress(fmt.Sprintf("Downloading experiment %d of %d", n+1, len(experiments)))
		}
		downloader, ok := experiment.(ArchiveDownloader)
		if !ok {
			subject.Logger().Debugf("Experiment %s has no archive to download, skipping", experiment.Label())
			report.Skipped = append(report.Skipped, experiment.Label())
			continue
		}
		if err := downloader.DownloadDir(ctx, subjectDir, verbose); err != nil {
			return report, fmt.Errorf("download experiment %s: %w", experiment.Label(), err)
		}
		report.Downloaded = append(report.Downloaded, experiment.Label())
	}

	path, err := WriteMetadata(subjectDir, subject.FullData())
	if err != nil {
		return report, err
	}
	report.MetadataPath = path

	if verbose {
		subject.Logger().Infof("Downloaded subject to %s", subjectDir)
	}
	return report, nil
}

// WriteMetadata sanitizes data and writes it as 4-space indented JSON to
// dir/clinical_data.json. The file is replaced atomically.
func WriteMetadata(dir string, data metadata.Value) (string, error) {
	encoded, err := metadata.MarshalIndent(metadata.Sanitize(data), "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode subject metadata: %w", err)
	}
	path := filepath.Join(dir, MetadataFile)
	if err := renameio.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", MetadataFile, err)
	}
	return path, nil
}

func ensureDir(dir string) error {
	err := os.Mkdir(dir, 0o755)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create subject dir: %w", err)
	}
	info, statErr := os.Stat(dir)
	if statErr != nil {
		return fmt.Errorf("stat subject dir: %w", statErr)
	}
	if !info.IsDir() {
		return fmt.Errorf("create subject dir: %s exists and is not a directory", dir)
	}
	return nil
}

func validateLabel(label string) error {
	if label == "" || label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}
