package workunit

import (
	"slices"
	"time"

	"stemsplit/internal/guard"
)

// InputItem identifies one video to process.
type InputItem struct {
	// Path is the resolved absolute path of the source video.
	Path string
	// Name is the collision-free output name assigned at batch start.
	Name string
	// Seq is the item's position in the input listing.
	Seq int
}

// ArtifactKind classifies an intermediate or final file.
type ArtifactKind string

const (
	KindRawAudio    ArtifactKind = "raw_audio"
	KindStem        ArtifactKind = "stem"
	KindTranscript  ArtifactKind = "transcript"
	KindSilentVideo ArtifactKind = "silent_video"
	KindVocalsVideo ArtifactKind = "vocals_video"
	KindBundle      ArtifactKind = "bundle"
)

// Artifact is a file produced while processing an item.
type Artifact struct {
	Kind  ArtifactKind
	Path  string
	Label string
}

// Keep reports whether the artifact belongs in the item's output directory.
func (a Artifact) Keep() bool {
	return a.Kind != KindRawAudio
}

// StageRecord captures when a stage started and finished.
type StageRecord struct {
	Stage    string
	Started  time.Time
	Finished time.Time
	Err      error
}

// Duration returns the elapsed time of the stage.
func (r StageRecord) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// DeliveryRecord summarizes one publish attempt sequence for an output.
type DeliveryRecord struct {
	LocalPath   string
	Destination string
	Attempts    int
	State       string
	LastErr     error
}

// Delivered reports whether the output reached the sink.
func (d DeliveryRecord) Delivered() bool {
	return d.State == "delivered"
}

// Transcription holds the outcome of the optional transcription stage.
type Transcription struct {
	Text     string
	Degraded bool
	Reason   string
}

// WorkUnit is the mutable state of one item while the pipeline runs it. It is
// owned by a single pipeline run.
type WorkUnit struct {
	Item        InputItem
	Artifacts   []Artifact
	Status      Status
	FailedStage string
	Err         error
	Timeline    []StageRecord
	Guard       *guard.Guard
	WorkDir     string
	OutputDir   string
	Outputs     []Artifact
	Deliveries  []DeliveryRecord
	Transcript  *Transcription
}

// New constructs a pending work unit for item.
func New(item InputItem, g *guard.Guard) *WorkUnit {
	return &WorkUnit{Item: item, Status: StatusPending, Guard: g}
}

// Transition moves the unit to next when the status table allows it.
func (w *WorkUnit) Transition(next Status) error {
	if !w.Status.CanTransition(next) {
		return ErrInvalidTransition{From: w.Status, To: next}
	}
	w.Status = next
	return nil
}

// Fail marks the unit failed at stage with err. A terminal unit is left as is.
func (w *WorkUnit) Fail(stage string, err error) {
	if w.Status.IsTerminal() {
		return
	}
	w.Status = StatusFailed
	w.FailedStage = stage
	w.Err = err
}

// AddArtifact records an artifact and registers its path with the guard.
func (w *WorkUnit) AddArtifact(a Artifact) {
	if w.Guard != nil {
		w.Guard.Register(a.Path)
	}
	w.Artifacts = append(w.Artifacts, a)
}

// ArtifactsOf returns the artifacts of the given kind in production order.
func (w *WorkUnit) ArtifactsOf(kind ArtifactKind) []Artifact {
	var out []Artifact
	for _, a := range w.Artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Artifact returns the first artifact of kind with the given label.
func (w *WorkUnit) Artifact(kind ArtifactKind, label string) (Artifact, bool) {
	for _, a := range w.Artifacts {
		if a.Kind == kind && (label == "" || a.Label == label) {
			return a, true
		}
	}
	return Artifact{}, false
}

// Succeeded reports whether the unit completed every stage.
func (w *WorkUnit) Succeeded() bool {
	return w.Status == StatusSucceeded
}

// OutputPaths returns the finalized output paths.
func (w *WorkUnit) OutputPaths() []string {
	paths := make([]string, 0, len(w.Outputs))
	for _, a := range w.Outputs {
		paths = append(paths, a.Path)
	}
	return paths
}

// CloneTimeline returns a copy of the stage timeline.
func (w *WorkUnit) CloneTimeline() []StageRecord {
	return slices.Clone(w.Timeline)
}
