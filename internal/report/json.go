package report

import (
	"encoding/json"
	"io"

	"github.com/roach88/uirun/internal/harness"
)

// Document is the JSON form of a suite report.
type Document struct {
	Summary harness.Summary      `json:"summary"`
	Passed  bool                 `json:"passed"`
	Results []*harness.RunResult `json:"results"`
}

// NewDocument builds the JSON document for rep.
func NewDocument(rep *harness.Report) Document {
	results := rep.Results
	if results == nil {
		results = []*harness.RunResult{}
	}
	return Document{
		Summary: rep.Summary(),
		Passed:  rep.Passed(),
		Results: results,
	}
}

// WriteJSON writes rep as an indented Document.
func WriteJSON(w io.Writer, rep *harness.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(NewDocument(rep))
}
