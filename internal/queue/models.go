package queue

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"collage/internal/services"
)

// State represents the lifecycle of a job.
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var allStates = []State{
	StateQueued,
	StateActive,
	StateCompleted,
	StateFailed,
}

// AllStates returns every job state in lifecycle order.
func AllStates() []State {
	return append([]State(nil), allStates...)
}

// ParseState converts a string into a State, returning false when unknown.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions can occur.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Layout is the axis along which inputs are concatenated.
type Layout string

const (
	LayoutHorizontal Layout = "horizontal"
	LayoutVertical   Layout = "vertical"
)

// ParseLayout converts a user-supplied layout name. Single-letter forms are accepted.
func ParseLayout(value string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "horizontal", "h", "row":
		return LayoutHorizontal, nil
	case "vertical", "v", "column":
		return LayoutVertical, nil
	default:
		return "", services.Wrap(services.ErrValidation, "queue", "parse layout",
			fmt.Sprintf("unsupported layout %q (expected horizontal or vertical)", value), nil)
	}
}

// Valid reports whether the layout is one of the supported values.
func (l Layout) Valid() bool {
	return l == LayoutHorizontal || l == LayoutVertical
}

// Input references one source image. Exactly one of Path or Data is set.
type Input struct {
	Path string `json:"path,omitempty"`
	Data []byte `json:"data,omitempty"`
	Name string `json:"name,omitempty"`
}

// Label identifies the input in logs and error messages.
func (in Input) Label() string {
	switch {
	case strings.TrimSpace(in.Name) != "":
		return in.Name
	case strings.TrimSpace(in.Path) != "":
		return in.Path
	default:
		return fmt.Sprintf("<%d bytes>", len(in.Data))
	}
}

// Spec is the producer payload for a new job.
type Spec struct {
	Inputs        []Input
	Layout        Layout
	BorderWidth   int
	BorderColor   color.NRGBA
	CleanupInputs bool
}

// Validate checks the shape of the payload. Image content is not inspected.
func (s Spec) Validate() error {
	if len(s.Inputs) == 0 {
		return services.Wrap(services.ErrValidation, "queue", "validate spec", "at least one input image is required", nil)
	}
	for idx, in := range s.Inputs {
		hasPath := strings.TrimSpace(in.Path) != ""
		if hasPath == (len(in.Data) > 0) {
			return services.Wrap(services.ErrValidation, "queue", "validate spec",
				fmt.Sprintf("input %d must set exactly one of path or data", idx), nil)
		}
	}
	if !s.Layout.Valid() {
		return services.Wrap(services.ErrValidation, "queue", "validate spec",
			fmt.Sprintf("unsupported layout %q", s.Layout), nil)
	}
	if s.BorderWidth < 0 {
		return services.Wrap(services.ErrValidation, "queue", "validate spec",
			fmt.Sprintf("border width must be >= 0, got %d", s.BorderWidth), nil)
	}
	return nil
}

// Job is a queued unit of compositing work.
type Job struct {
	ID            string
	Inputs        []Input
	Layout        Layout
	BorderWidth   int
	BorderColor   color.NRGBA
	CleanupInputs bool
	State         State
	Attempt       int
	ResultRef     string
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	HeartbeatAt   *time.Time
}

// Spec returns the producer payload the job was created from.
func (j *Job) Spec() Spec {
	return Spec{
		Inputs:        j.Inputs,
		Layout:        j.Layout,
		BorderWidth:   j.BorderWidth,
		BorderColor:   j.BorderColor,
		CleanupInputs: j.CleanupInputs,
	}
}

// IsTerminal reports whether the job reached COMPLETED or FAILED.
func (j *Job) IsTerminal() bool {
	return j != nil && j.State.IsTerminal()
}

// NewJob builds a QUEUED job record for spec with the given identity.
func NewJob(id string, spec Spec, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:            id,
		Inputs:        append([]Input(nil), spec.Inputs...),
		Layout:        spec.Layout,
		BorderWidth:   spec.BorderWidth,
		BorderColor:   spec.BorderColor,
		CleanupInputs: spec.CleanupInputs,
		State:         StateQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkCompleted mirrors a persisted completion onto the caller's copy of a job.
func MarkCompleted(j *Job, resultRef string, now time.Time) {
	now = now.UTC()
	j.State = StateCompleted
	j.ResultRef = resultRef
	j.Error = ""
	j.FinishedAt = &now
	j.UpdatedAt = now
	j.HeartbeatAt = nil
}

// MarkFailed mirrors a persisted failure onto the caller's copy of a job.
func MarkFailed(j *Job, message string, now time.Time) {
	now = now.UTC()
	j.State = StateFailed
	j.ResultRef = ""
	j.Error = message
	j.FinishedAt = &now
	j.UpdatedAt = now
	j.HeartbeatAt = nil
}
