package batch

import (
	"context"

	"downxnat/internal/download"
	"downxnat/internal/xnat"
)

// XNATSource serves subjects from an XNAT session.
type XNATSource struct {
	Client *xnat.Client
}

func (s XNATSource) SubjectLabels(ctx context.Context, project string) ([]string, error) {
	refs, err := s.Client.Subjects(ctx, project)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(refs))
	for _, ref := range refs {
		labels = append(labels, ref.Label)
	}
	return labels, nil
}

func (s XNATSource) Subject(ctx context.Context, project, label string) (download.Subject, error) {
	subject, err := s.Client.Subject(ctx, project, label)
	if err != nil {
		return nil, err
	}
	return subject, nil
}
