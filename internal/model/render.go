package model

import "time"

// RenderStartRequest represents the request to start a render job.
// The web client nests the copy under "content"; flat fields win when both are sent.
type RenderStartRequest struct {
	TemplateID  string        `json:"templateId" validate:"required,slug"`
	FormatKey   string        `json:"formatKey" validate:"required,slug"`
	PaletteKey  string        `json:"paletteKey" validate:"required,slug"`
	MotionStyle string        `json:"motionStyle" validate:"required,slug"`
	Headline    string        `json:"headline" validate:"required,max=40"`
	Subheadline string        `json:"subheadline" validate:"required,max=90"`
	Body        string        `json:"body" validate:"max=220"`
	Content     *ContentInput `json:"content,omitempty"`
	Preview     bool          `json:"preview"`
}

// ContentInput is the nested copy object sent by the web client
type ContentInput struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline"`
	Body        string `json:"body"`
}

// Normalize folds the nested content object into the flat fields.
func (r *RenderStartRequest) Normalize() {
	if r.Content == nil {
		return
	}
	if r.Headline == "" {
		r.Headline = r.Content.Headline
	}
	if r.Subheadline == "" {
		r.Subheadline = r.Content.Subheadline
	}
	if r.Body == "" {
		r.Body = r.Content.Body
	}
	r.Content = nil
}

// ToRenderRequest snapshots the validated request.
func (r *RenderStartRequest) ToRenderRequest() RenderRequest {
	return RenderRequest{
		TemplateID:  r.TemplateID,
		FormatKey:   r.FormatKey,
		PaletteKey:  r.PaletteKey,
		MotionStyle: r.MotionStyle,
		Content: Content{
			Headline:    r.Headline,
			Subheadline: r.Subheadline,
			Body:        r.Body,
		},
		Preview: r.Preview,
	}
}

// RenderStartResponse represents the response when starting a render
type RenderStartResponse struct {
	JobID string `json:"jobId"`
}

// RenderStatusResponse wraps the job view returned by the status endpoint
type RenderStatusResponse struct {
	Job JobView `json:"job"`
}

// JobView is the public projection of a Job
type JobView struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Phase        JobPhase  `json:"phase"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewJobView projects a job for the status endpoint.
func NewJobView(j Job) JobView {
	return JobView{
		ID:           j.ID,
		Status:       j.Status,
		Phase:        j.Phase,
		ErrorMessage: j.ErrorMessage,
		Error:        j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}
