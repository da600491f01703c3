package xnat

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	log "github.com/sirupsen/logrus"

	"downxnat/internal/download"
	"downxnat/pkg/metadata"
)

// Subject is a subject record loaded from the server. It satisfies
// download.Subject.
type Subject struct {
	ID          string
	Project     string
	label       string
	experiments []download.Experiment
	fulldata    metadata.Value
	logger      log.FieldLogger
}

var _ download.Subject = (*Subject)(nil)

func (s *Subject) Label() string                      { return s.label }
func (s *Subject) Experiments() []download.Experiment { return s.experiments }
func (s *Subject) FullData() metadata.Value           { return s.fulldata }
func (s *Subject) Logger() log.FieldLogger            { return s.logger }

// Subjects lists the subjects of a project, ordered by label.
func (c *Client) Subjects(ctx context.Context, project string) ([]SubjectRef, error) {
	if err := checkSegment("project", project); err != nil {
		return nil, err
	}
	var rs resultSet[SubjectRef]
	if err := c.getJSON(ctx, path.Join("/data/projects", project, "subjects"), &rs); err != nil {
		return nil, fmt.Errorf("list subjects of %s: %w", project, err)
	}
	subjects := rs.ResultSet.Result
	sort.SliceStable(subjects, func(i, j int) bool {
		return subjects[i].Label < subjects[j].Label
	})
	return subjects, nil
}

// Subject loads one subject of a project by label or accession id, together
// with its experiment list and full metadata record.
func (c *Client) Subject(ctx context.Context, project, label string) (*Subject, error) {
	if err := checkSegment("project", project); err != nil {
		return nil, err
	}
	if err := checkSegment("subject", label); err != nil {
		return nil, err
	}
	subjectPath := path.Join("/data/projects", project, "subjects", label)

	fulldata, err := c.fullData(ctx, subjectPath)
	if err != nil {
		return nil, fmt.Errorf("load subject %s: %w", label, err)
	}

	var rs resultSet[ExperimentRef]
	if err := c.getJSON(ctx, subjectPath+"/experiments", &rs); err != nil {
		return nil, fmt.Errorf("list experiments of %s: %w", label, err)
	}

	subject := &Subject{
		Project:  project,
		label:    label,
		fulldata: fulldata,
		logger:   c.logger.WithFields(log.Fields{"project": project, "subject": label}),
	}
	if obj, ok := fulldata.(metadata.Object); ok {
		subject.ID = stringField(obj, "data_fields", "ID")
		if l := stringField(obj, "data_fields", "label"); l != "" {
			subject.label = l
			subject.logger = c.logger.WithFields(log.Fields{"project": project, "subject": l})
		}
	}
	for _, ref := range rs.ResultSet.Result {
		subject.experiments = append(subject.experiments, c.experiment(ref, subject.logger))
	}
	return subject, nil
}

// fullData returns the first item of the subject document, which carries the
// data_fields, meta and children of the record.
func (c *Client) fullData(ctx context.Context, subjectPath string) (metadata.Value, error) {
	resp, err := c.get(ctx, subjectPath, jsonQuery())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := metadata.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	obj, ok := doc.(metadata.Object)
	if !ok {
		return nil, fmt.Errorf("unexpected subject document %T", doc)
	}
	items, _ := obj.Get("items")
	arr, ok := items.(metadata.Array)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("%w: subject document has no items", ErrNotFound)
	}
	return arr[0], nil
}

func (c *Client) getJSON(ctx context.Context, p string, dst any) error {
	resp, err := c.get(ctx, p, jsonQuery())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

// stringField follows keys through nested objects and returns the string at
// the end, or "".
func stringField(obj metadata.Object, keys ...string) string {
	var cur metadata.Value = obj
	for _, k := range keys {
		o, ok := cur.(metadata.Object)
		if !ok {
			return ""
		}
		if cur, ok = o.Get(k); !ok {
			return ""
		}
	}
	s, _ := cur.(metadata.String)
	return string(s)
}
