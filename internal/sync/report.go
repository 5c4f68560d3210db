package sync

import "time"

// Outcome is the result of one file in a run.
type Outcome string

// Outcome values.
const (
	OutcomeUploaded Outcome = "uploaded"
	OutcomeFailed   Outcome = "failed"
	OutcomePlanned  Outcome = "planned"
)

// FileOutcome records what happened to one eligible file.
type FileOutcome struct {
	RelPath    string
	RemotePath string
	Size       int64
	Outcome    Outcome
	Chunked    bool
	Attempts   int
	// Kind is the error kind label (see Kind) for failed files.
	Kind string
	Err  error
}

// Report summarizes a run or a watch-mode batch.
type Report struct {
	RunID      string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time

	Files          []FileOutcome
	Uploaded       int
	FailedCount    int
	Bytes          int64
	FoldersCreated int
	Ignored        int
	// Planned lists remote folders a dry run would ensure, in walk order.
	Planned []string
}

// Failed reports whether any file failed.
func (r *Report) Failed() bool {
	return r.FailedCount > 0
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failures returns the failed files in walk order.
func (r *Report) Failures() []FileOutcome {
	var out []FileOutcome

	for i := range r.Files {
		if r.Files[i].Outcome == OutcomeFailed {
			out = append(out, r.Files[i])
		}
	}

	return out
}

func (r *Report) recordUpload(fo FileOutcome) {
	fo.Outcome = OutcomeUploaded
	r.Files = append(r.Files, fo)
	r.Uploaded++
	r.Bytes += fo.Size
}

func (r *Report) recordFailure(fo FileOutcome, err error) {
	fo.Outcome = OutcomeFailed
	fo.Kind = Kind(err)
	fo.Err = err
	r.Files = append(r.Files, fo)
	r.FailedCount++
}

func (r *Report) recordPlanned(fo FileOutcome) {
	fo.Outcome = OutcomePlanned
	r.Files = append(r.Files, fo)
}
