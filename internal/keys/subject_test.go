package keys

import (
	"path/filepath"
	"testing"
)

func TestSubjectFile(t *testing.T) {
	cases := []struct {
		name     string
		project  string
		label    string
		rel      string
		expected string
	}{
		{"metadata file", "OASIS3", "OAS30001", "clinical_data.json", "OASIS3/OAS30001/clinical_data.json"},
		{"nested scan", "OASIS3", "OAS30001", filepath.Join("OAS30001_MR_d0129", "scans", "1.dcm"), "OASIS3/OAS30001/OAS30001_MR_d0129/scans/1.dcm"},
		{"spaces replaced", "My Project", "Subject 7", "a.json", "My-Project/Subject-7/a.json"},
		{"dot segments cleaned", "P", "S", "./x/../y.json", "P/S/y.json"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SubjectFile(tc.project, tc.label, tc.rel); got != tc.expected {
				t.Fatalf("SubjectFile(%q, %q, %q) = %q; want %q", tc.project, tc.label, tc.rel, got, tc.expected)
			}
		})
	}
}

func TestSubjectPrefix(t *testing.T) {
	if got := SubjectPrefix("OASIS3", "OAS30001"); got != "OASIS3/OAS30001/" {
		t.Fatalf("SubjectPrefix = %q", got)
	}
}
