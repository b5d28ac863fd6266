package domain

import "time"

const (
	FileStatusSucceeded = "succeeded"
	FileStatusFailed    = "failed"
)

// FileResult is the outcome of processing one candidate file.
type FileResult struct {
	Name        string        `json:"name"`
	SourcePath  string        `json:"source_path"`
	OutputPath  string        `json:"output_path,omitempty"`
	Status      string        `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Error       string        `json:"error,omitempty"`
	Format      string        `json:"format,omitempty"`
	OrigWidth   int           `json:"orig_width,omitempty"`
	OrigHeight  int           `json:"orig_height,omitempty"`
	Width       int           `json:"width,omitempty"`
	Height      int           `json:"height,omitempty"`
	SourceBytes int           `json:"source_bytes,omitempty"`
	OutputBytes int           `json:"output_bytes,omitempty"`
	Duration    time.Duration `json:"duration"`
	ProcessedAt time.Time     `json:"processed_at"`
}

func Succeeded(name, sourcePath string) FileResult {
	return FileResult{Name: name, SourcePath: sourcePath, Status: FileStatusSucceeded}
}

// Failed tags the result with the reason derived from err.
func Failed(name, sourcePath string, err error) FileResult {
	return FileResult{
		Name:       name,
		SourcePath: sourcePath,
		Status:     FileStatusFailed,
		Reason:     ReasonOf(err),
		Error:      err.Error(),
	}
}

func (r FileResult) OK() bool {
	return r.Status == FileStatusSucceeded
}

func (r FileResult) Resized() bool {
	return r.OK() && (r.Width != r.OrigWidth || r.Height != r.OrigHeight)
}

// BytesSaved never goes negative; re-encoding can grow small inputs.
func (r FileResult) BytesSaved() int64 {
	saved := int64(r.SourceBytes - r.OutputBytes)
	if saved < 0 || !r.OK() {
		return 0
	}
	return saved
}

type Summary struct {
	RunID     string        `json:"run_id"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []FileResult  `json:"results"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (s *Summary) Add(r FileResult) {
	s.Attempted++
	if r.OK() {
		s.Succeeded++
	} else {
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

func (s Summary) Failures() []FileResult {
	var out []FileResult
	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
