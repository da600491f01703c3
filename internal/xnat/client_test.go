package xnat

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"downxnat/internal/download"
)

const sessionID = "0123456789ABCDEF"

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newFakeXNAT serves a single OASIS3 project with one subject holding an MR
// session and a clinical assessment.
func newFakeXNAT(t *testing.T) *httptest.Server {
	t.Helper()
	archive := buildZip(t, map[string]string{
		"OAS30001_MR_d0129/scans/1-T1w/resources/DICOM/files/1.dcm": "dicom-1",
		"OAS30001_MR_d0129/scans/2-FLAIR/resources/DICOM/files/1.dcm": "dicom-2",
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie("JSESSIONID")
			if err != nil || c.Value != sessionID {
				http.Error(w, "login required", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	writeJSON := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/data/JSESSION", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			user, pass, ok := r.BasicAuth()
			if !ok || user != "alice" || pass != "secret" {
				http.Error(w, "bad credentials", http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: sessionID, Path: "/"})
			_, _ = w.Write([]byte(sessionID))
		case http.MethodDelete:
			authed(func(w http.ResponseWriter, r *http.Request) {})(w, r)
		default:
			http.Error(w, "method", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/data/projects/OASIS3/subjects", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("unexpected format %q", r.URL.Query().Get("format"))
		}
		writeJSON(w, `{"ResultSet":{"totalRecords":"2","Result":[
			{"ID":"XNAT_S002","label":"OAS30002","project":"OASIS3"},
			{"ID":"XNAT_S001","label":"OAS30001","project":"OASIS3"}]}}`)
	}))
	mux.HandleFunc("/data/projects/OASIS3/subjects/OAS30001", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"items":[{"children":[],"meta":{"xsi:type":"xnat:subjectData","isHistory":false},
			"data_fields":{"ID":"XNAT_S001","label":"OAS30001","gender":"female","yob":1940}}]}`)
	}))
	mux.HandleFunc("/data/projects/OASIS3/subjects/OAS30001/experiments", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"ResultSet":{"Result":[
			{"ID":"XNAT_E001","label":"OAS30001_MR_d0129","xsiType":"xnat:mrSessionData"},
			{"ID":"XNAT_E002","label":"OAS30001_ClinicalData_d0000","xsiType":"nacc:clinicalAssessmentData"}]}}`)
	}))
	mux.HandleFunc("/data/experiments/XNAT_E001/scans/ALL/files", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "zip" {
			t.Errorf("unexpected format %q", r.URL.Query().Get("format"))
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func connect(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := Connect(context.Background(), Options{
		BaseURL:  server.URL,
		Username: "alice",
		Password: "secret",
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestConnect_BadCredentials(t *testing.T) {
	server := newFakeXNAT(t)
	_, err := Connect(context.Background(), Options{BaseURL: server.URL, Username: "alice", Password: "wrong"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v; want ErrUnauthorized", err)
	}
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	if _, err := newClient(Options{BaseURL: "central.xnat.org"}); err == nil {
		t.Fatal("expected an error for a URL without scheme")
	}
}

func TestClient_Subjects_SortedByLabel(t *testing.T) {
	c := connect(t, newFakeXNAT(t))
	subjects, err := c.Subjects(context.Background(), "OASIS3")
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if len(subjects) != 2 || subjects[0].Label != "OAS30001" || subjects[1].Label != "OAS30002" {
		t.Errorf("subjects = %+v", subjects)
	}
}

func TestClient_Subject(t *testing.T) {
	c := connect(t, newFakeXNAT(t))
	subject, err := c.Subject(context.Background(), "OASIS3", "OAS30001")
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}
	if subject.ID != "XNAT_S001" || subject.Label() != "OAS30001" {
		t.Errorf("subject = %s/%s", subject.ID, subject.Label())
	}
	experiments := subject.Experiments()
	if len(experiments) != 2 {
		t.Fatalf("got %d experiments; want 2", len(experiments))
	}
	if _, ok := experiments[0].(download.ArchiveDownloader); !ok {
		t.Errorf("MR session should support archive download")
	}
	if _, ok := experiments[1].(download.ArchiveDownloader); ok {
		t.Errorf("clinical assessment should not support archive download")
	}
}

func TestClient_Subject_NotFound(t *testing.T) {
	c := connect(t, newFakeXNAT(t))
	_, err := c.Subject(context.Background(), "OASIS3", "OAS39999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestClient_Subject_RejectsPathNames(t *testing.T) {
	c := connect(t, newFakeXNAT(t))
	tests := []struct {
		project, label string
	}{
		{"OASIS3", "../../experiments/X"},
		{"OASIS3", ".."},
		{"OASIS3", "OAS30001?format=zip"},
		{"OASIS3", ""},
		{"../OASIS3", "OAS30001"},
	}
	for _, tt := range tests {
		if _, err := c.Subject(context.Background(), tt.project, tt.label); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Subject(%q, %q) = %v; want ErrInvalidName", tt.project, tt.label, err)
		}
	}
	if _, err := c.Subjects(context.Background(), "a/b"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Subjects(a/b) = %v; want ErrInvalidName", err)
	}
}

func TestDownloadSubject_FromServer(t *testing.T) {
	c := connect(t, newFakeXNAT(t))
	subject, err := c.Subject(context.Background(), "OASIS3", "OAS30001")
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}
	target := t.TempDir()

	report, err := download.DownloadSubject(context.Background(), subject, target, true, nil)
	if err != nil {
		t.Fatalf("DownloadSubject: %v", err)
	}
	if len(report.Downloaded) != 1 || len(report.Skipped) != 1 {
		t.Errorf("report = %+v", report)
	}

	dicom := filepath.Join(target, "OAS30001", "OAS30001_MR_d0129", "scans", "2-FLAIR", "resources", "DICOM", "files", "1.dcm")
	if b, err := os.ReadFile(dicom); err != nil || string(b) != "dicom-2" {
		t.Errorf("read %s: %q, %v", dicom, b, err)
	}

	raw, err := os.ReadFile(filepath.Join(target, "OAS30001", download.MetadataFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "{\n    \"children\": [],\n    \"meta\": {") {
		t.Errorf("metadata does not keep server key order:\n%s", raw)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	fields := doc["data_fields"].(map[string]any)
	if fields["gender"] != "female" {
		t.Errorf("data_fields = %v", fields)
	}
}

func TestClient_Close(t *testing.T) {
	c := connect(t, newFakeXNAT(t))
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestUnzip_RejectsTraversal(t *testing.T) {
	archive := buildZip(t, map[string]string{"../evil.txt": "x"})
	dir := t.TempDir()
	if _, err := unzip(bytes.NewReader(archive), int64(len(archive)), dir); err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "evil.txt")); !os.IsNotExist(err) {
		t.Errorf("file written outside target: %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
		}))
		resp, err := http.Get(server.URL + "/data/x")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		server.Close()
		if err := checkStatus(resp); !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v; want %v", tt.code, err, tt.want)
		}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	resp, err := http.Get(server.URL + "/data/y")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	var statusErr *StatusError
	if err := checkStatus(resp); !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Errorf("err = %v; want StatusError 502", err)
	}
}
