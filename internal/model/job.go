package model

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus is the coarse lifecycle state of a render job
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// JobPhase is the fine-grained progress marker inside JobStatusRunning
type JobPhase string

const (
	PhaseQueued               JobPhase = "queued"
	PhaseBundling             JobPhase = "bundling"
	PhaseResolvingComposition JobPhase = "resolving_composition"
	PhaseRendering            JobPhase = "rendering"
	PhaseDone                 JobPhase = "done"
	PhaseError                JobPhase = "error"
)

var (
	// ErrJobFrozen is returned when a patch targets a job in a terminal state.
	ErrJobFrozen = errors.New("job is frozen")
	// ErrInvalidTransition is returned when a patch would move a job backwards
	// or into an inconsistent state.
	ErrInvalidTransition = errors.New("invalid job transition")
)

var statusRank = map[JobStatus]int{
	JobStatusQueued:  0,
	JobStatusRunning: 1,
	JobStatusDone:    2,
	JobStatusError:   2,
}

var phaseRank = map[JobPhase]int{
	PhaseQueued:               0,
	PhaseBundling:             1,
	PhaseResolvingComposition: 2,
	PhaseRendering:            3,
	PhaseDone:                 4,
	PhaseError:                4,
}

// Content is the copy placed on a template
type Content struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline"`
	Body        string `json:"body,omitempty"`
}

// RenderRequest is the immutable snapshot of what the caller asked for
type RenderRequest struct {
	TemplateID  string  `json:"templateId"`
	FormatKey   string  `json:"formatKey"`
	PaletteKey  string  `json:"paletteKey"`
	MotionStyle string  `json:"motionStyle"`
	Content     Content `json:"content"`
	Preview     bool    `json:"preview,omitempty"`
}

// Job is one render request's lifecycle record
type Job struct {
	ID           string        `json:"id"`
	Status       JobStatus     `json:"status"`
	Phase        JobPhase      `json:"phase"`
	Request      RenderRequest `json:"request"`
	OutputRef    string        `json:"outputRef,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// NewJob returns a queued job stamped with now.
func NewJob(id string, req RenderRequest, now time.Time) Job {
	return Job{
		ID:        id,
		Status:    JobStatusQueued,
		Phase:     PhaseQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the job reached Done or Error.
func (j Job) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusError
}

// JobPatch is a partial update of a job. Nil fields are left untouched.
type JobPatch struct {
	Status       *JobStatus
	Phase        *JobPhase
	OutputRef    *string
	ErrorMessage *string
}

// PhasePatch moves a job into the Running status at the given phase.
func PhasePatch(phase JobPhase) JobPatch {
	status := JobStatusRunning
	return JobPatch{Status: &status, Phase: &phase}
}

// DonePatch completes a job with the produced artifact reference.
func DonePatch(outputRef string) JobPatch {
	status := JobStatusDone
	phase := PhaseDone
	return JobPatch{Status: &status, Phase: &phase, OutputRef: &outputRef}
}

// ErrorPatch fails a job with a human-readable cause.
func ErrorPatch(message string) JobPatch {
	status := JobStatusError
	phase := PhaseError
	return JobPatch{Status: &status, Phase: &phase, ErrorMessage: &message}
}

// Apply returns the job with the patch applied, or an error when the result
// would break the lifecycle rules. The receiver is not modified.
func (j Job) Apply(p JobPatch, now time.Time) (Job, error) {
	if j.IsTerminal() {
		return j, ErrJobFrozen
	}

	next := j
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Phase != nil {
		next.Phase = *p.Phase
	}
	if p.OutputRef != nil {
		next.OutputRef = *p.OutputRef
	}
	if p.ErrorMessage != nil {
		next.ErrorMessage = *p.ErrorMessage
	}

	if err := checkTransition(j, next); err != nil {
		return j, err
	}

	if now.After(j.UpdatedAt) {
		next.UpdatedAt = now
	}
	return next, nil
}

func checkTransition(from, to Job) error {
	toStatusRank, ok := statusRank[to.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to.Status)
	}
	toPhaseRank, ok := phaseRank[to.Phase]
	if !ok {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, to.Phase)
	}

	if toStatusRank < statusRank[from.Status] {
		return fmt.Errorf("%w: status %s -> %s", ErrInvalidTransition, from.Status, to.Status)
	}
	if to.Phase != from.Phase && toPhaseRank <= phaseRank[from.Phase] {
		return fmt.Errorf("%w: phase %s -> %s", ErrInvalidTransition, from.Phase, to.Phase)
	}

	switch to.Status {
	case JobStatusQueued:
		if to.Phase != PhaseQueued {
			return fmt.Errorf("%w: queued job in phase %s", ErrInvalidTransition, to.Phase)
		}
	case JobStatusRunning:
		if to.Phase != PhaseBundling && to.Phase != PhaseResolvingComposition && to.Phase != PhaseRendering {
			return fmt.Errorf("%w: running job in phase %s", ErrInvalidTransition, to.Phase)
		}
	case JobStatusDone:
		if from.Status != JobStatusRunning || to.Phase != PhaseDone || to.OutputRef == "" {
			return fmt.Errorf("%w: done requires a running job and an output", ErrInvalidTransition)
		}
	case JobStatusError:
		if from.Status != JobStatusRunning || to.Phase != PhaseError || to.ErrorMessage == "" {
			return fmt.Errorf("%w: error requires a running job and a message", ErrInvalidTransition)
		}
	}

	if to.Status != JobStatusDone && to.OutputRef != "" {
		return fmt.Errorf("%w: output set on %s job", ErrInvalidTransition, to.Status)
	}
	if to.Status != JobStatusError && to.ErrorMessage != "" {
		return fmt.Errorf("%w: error message set on %s job", ErrInvalidTransition, to.Status)
	}
	return nil
}
