package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"downxnat/pkg/metadata"
)

type fakeSubject struct {
	label       string
	experiments []Experiment
	data        metadata.Value
	logger      log.FieldLogger
}

func (s *fakeSubject) Label() string             { return s.label }
func (s *fakeSubject) Experiments() []Experiment { return s.experiments }
func (s *fakeSubject) FullData() metadata.Value  { return s.data }
func (s *fakeSubject) Logger() log.FieldLogger   { return s.logger }

// assessor has no archive.
type assessor struct{ label string }

func (a *assessor) Label() string { return a.label }

// session writes a marker file instead of fetching an archive.
type session struct {
	label   string
	calls   *[]string
	err     error
	verbose *bool
}

func (s *session) Label() string { return s.label }

func (s *session) DownloadDir(_ context.Context, dir string, verbose bool) error {
	*s.calls = append(*s.calls, s.label)
	if s.verbose != nil {
		*s.verbose = verbose
	}
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(filepath.Join(dir, s.label+".dcm"), []byte(s.label), 0o644)
}

func newFakeSubject(t *testing.T, experiments ...Experiment) (*fakeSubject, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return &fakeSubject{
		label:       "OAS30001",
		experiments: experiments,
		data: metadata.Object{
			{Key: "label", Value: metadata.String("OAS30001")},
			{Key: "handle", Value: metadata.Opaque{V: func() {}}},
			{Key: "visits", Value: metadata.Array{metadata.Int(1), metadata.Opaque{V: make(chan int)}}},
		},
		logger: logger,
	}, hook
}

func TestDownloadSubject_SkipsExperimentsWithoutArchive(t *testing.T) {
	var calls []string
	subject, hook := newFakeSubject(t,
		&session{label: "MR1", calls: &calls},
		&assessor{label: "CLIN1"},
		&session{label: "MR2", calls: &calls},
	)
	target := t.TempDir()

	var progress []string
	report, err := DownloadSubject(context.Background(), subject, target, true, func(msg string) {
		progress = append(progress, msg)
	})
	if err != nil {
		t.Fatalf("DownloadSubject: %v", err)
	}

	wantProgress := []string{
		"Downloading experiment 1 of 3",
		"Downloading experiment 2 of 3",
		"Downloading experiment 3 of 3",
	}
	if !reflect.DeepEqual(progress, wantProgress) {
		t.Errorf("progress = %q; want %q", progress, wantProgress)
	}
	if !reflect.DeepEqual(calls, []string{"MR1", "MR2"}) {
		t.Errorf("downloads = %v; want [MR1 MR2]", calls)
	}
	if !reflect.DeepEqual(report.Skipped, []string{"CLIN1"}) {
		t.Errorf("skipped = %v; want [CLIN1]", report.Skipped)
	}

	subjectDir := filepath.Join(target, "OAS30001")
	got, err := os.ReadFile(filepath.Join(subjectDir, MetadataFile))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	want := "{\n    \"label\": \"OAS30001\",\n    \"visits\": [\n        1,\n        null\n    ]\n}"
	if string(got) != want {
		t.Errorf("clinical_data.json =\n%s\nwant\n%s", got, want)
	}
	for _, name := range []string{"MR1.dcm", "MR2.dcm"} {
		if _, err := os.Stat(filepath.Join(subjectDir, name)); err != nil {
			t.Errorf("expected %s in subject dir: %v", name, err)
		}
	}

	last := hook.LastEntry()
	if last == nil || last.Message != "Downloaded subject to "+subjectDir || last.Level != log.InfoLevel {
		t.Errorf("last log entry = %+v; want info 'Downloaded subject to %s'", last, subjectDir)
	}
}

func TestDownloadSubject_RerunOverwritesMetadata(t *testing.T) {
	subject, _ := newFakeSubject(t)
	target := t.TempDir()
	subjectDir := filepath.Join(target, "OAS30001")
	if err := os.Mkdir(subjectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(subjectDir, MetadataFile), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := DownloadSubject(context.Background(), subject, target, false, nil); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	got, err := os.ReadFile(filepath.Join(subjectDir, MetadataFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) == "stale" {
		t.Error("clinical_data.json was not overwritten")
	}
}

func TestDownloadSubject_QuietWhenNotVerbose(t *testing.T) {
	var calls []string
	var verbose bool
	subject, hook := newFakeSubject(t, &session{label: "MR1", calls: &calls, verbose: &verbose})
	verbose = true

	if _, err := DownloadSubject(context.Background(), subject, t.TempDir(), false, nil); err != nil {
		t.Fatalf("DownloadSubject: %v", err)
	}
	if verbose {
		t.Error("verbose flag not passed through to the experiment")
	}
	for _, e := range hook.AllEntries() {
		if e.Level <= log.InfoLevel {
			t.Errorf("unexpected log entry at %s: %s", e.Level, e.Message)
		}
	}
}

func TestDownloadSubject_PropagatesDownloadError(t *testing.T) {
	var calls []string
	boom := errors.New("connection reset")
	subject, _ := newFakeSubject(t,
		&session{label: "MR1", calls: &calls, err: boom},
		&session{label: "MR2", calls: &calls},
	)
	target := t.TempDir()

	_, err := DownloadSubject(context.Background(), subject, target, false, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want %v", err, boom)
	}
	if len(calls) != 1 {
		t.Errorf("downloads after failure = %v; want only MR1", calls)
	}
	if _, err := os.Stat(filepath.Join(target, "OAS30001", MetadataFile)); !os.IsNotExist(err) {
		t.Errorf("metadata written after failed download: %v", err)
	}
}

func TestDownloadSubject_InvalidLabel(t *testing.T) {
	for _, label := range []string{"", "..", "a/b"} {
		subject, _ := newFakeSubject(t)
		subject.label = label
		if _, err := DownloadSubject(context.Background(), subject, t.TempDir(), false, nil); !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("label %q: err = %v; want ErrInvalidLabel", label, err)
		}
	}
}

func TestDownloadSubject_MissingTargetDir(t *testing.T) {
	subject, _ := newFakeSubject(t)
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := DownloadSubject(context.Background(), subject, missing, false, nil); err == nil {
		t.Fatal("expected an error when the target directory does not exist")
	}
}
