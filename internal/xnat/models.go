package xnat

// resultSet is the envelope of XNAT listing responses (?format=json).
type resultSet[T any] struct {
	ResultSet struct {
		Result     []T    `json:"Result"`
		TotalCount string `json:"totalRecords"`
	} `json:"ResultSet"`
}

// SubjectRef is a row of a project's subject listing.
type SubjectRef struct {
	ID      string `json:"ID"`
	Label   string `json:"label"`
	Project string `json:"project"`
	URI     string `json:"URI"`
}

// ExperimentRef is a row of a subject's experiment listing.
type ExperimentRef struct {
	ID      string `json:"ID"`
	Label   string `json:"label"`
	XSIType string `json:"xsiType"`
	Date    string `json:"date"`
	Project string `json:"project"`
	URI     string `json:"URI"`
}
