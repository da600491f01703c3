package xnat

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"downxnat/internal/download"
)

// ImageSession is an imaging experiment (MR, PET, CT ...). Its scans can be
// downloaded as a zip archive.
type ImageSession struct {
	Ref    ExperimentRef
	client *Client
	logger log.FieldLogger
}

// Assessor is any other experiment type, such as a clinical assessment. It
// has no archive of its own.
type Assessor struct {
	Ref ExperimentRef
}

var (
	_ download.ArchiveDownloader = (*ImageSession)(nil)
	_ download.Experiment        = (*Assessor)(nil)
)

func (s *ImageSession) Label() string { return s.Ref.Label }
func (a *Assessor) Label() string     { return a.Ref.Label }

func (c *Client) experiment(ref ExperimentRef, logger log.FieldLogger) download.Experiment {
	if isImageSession(ref.XSIType) {
		return &ImageSession{
			Ref:    ref,
			client: c,
			logger: logger.WithField("experiment", ref.Label),
		}
	}
	return &Assessor{Ref: ref}
}

// isImageSession reports whether an xsiType names an image session, e.g.
// xnat:mrSessionData or xnat:petSessionData.
func isImageSession(xsiType string) bool {
	return strings.HasSuffix(xsiType, "SessionData")
}

// DownloadDir fetches the session's scans as a zip archive and unpacks it
// into dir. The archive holds a top-level folder named after the experiment
// label.
func (s *ImageSession) DownloadDir(ctx context.Context, dir string, verbose bool) error {
	archivePath := path.Join("/data/experiments", s.Ref.ID, "scans", s.client.scanType, "files")
	if verbose {
		s.logger.Infof("Downloading %s", archivePath)
	}

	tmp, err := os.CreateTemp("", "downxnat-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	resp, err := s.client.get(ctx, archivePath, url.Values{"format": {"zip"}})
	if err != nil {
		return fmt.Errorf("fetch archive: %w", err)
	}
	written, err := io.Copy(tmp, resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("fetch archive: %w", err)
	}
	if verbose {
		s.logger.Infof("Downloaded %s archive", humanize.Bytes(uint64(written)))
	}

	files, err := unzip(tmp, written, dir)
	if err != nil {
		return fmt.Errorf("unpack archive: %w", err)
	}
	if verbose {
		s.logger.Infof("Unpacked %d files into %s", files, dir)
	}
	return nil
}
