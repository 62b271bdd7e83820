package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/matrixdrive/internal/matrix"
	"github.com/bgricker/matrixdrive/internal/report"
)

// JSONRenderer emits structured run data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// Plan captures the JSON schema of a not-yet-executed job plan.
type Plan struct {
	Project string           `json:"project,omitempty"`
	Jobs    []matrix.JobSpec `json:"jobs"`
}

// RenderPlan encodes the expanded jobs as JSON.
func (j *JSONRenderer) RenderPlan(plan Plan) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// RenderReport encodes the final report as JSON.
func (j *JSONRenderer) RenderReport(rep report.Report) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
