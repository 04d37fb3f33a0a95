package models

import "time"

// DefaultFields is the field schema requested when the caller supplies none.
var DefaultFields = []string{
	"title", "type", "release_year", "genre", "rating", "cast", "synopsis",
}

// RunRequest is the payload for POST /api/v1/runs and the input of
// Pipeline.Run. Zero-valued settings are filled from the pipeline defaults.
type RunRequest struct {
	// URL is the target page to scrape. Required.
	URL string `json:"url" binding:"required,url"`

	// Fields is the ordered list of field names the model is asked to extract.
	Fields []string `json:"fields,omitempty"`

	// MaxChars bounds how many characters of the raw document the model sees.
	MaxChars int `json:"max_chars,omitempty" binding:"omitempty,min=1"`

	// Retries is the number of scrape attempts.
	Retries int `json:"retries,omitempty" binding:"omitempty,min=1,max=10"`

	// RetryDelay is the fixed pause between failed scrape attempts. Nil
	// means the default; an explicit zero means no pause.
	RetryDelay *Duration `json:"retry_delay,omitempty"`
}

// RunDefaults carries the values applied to unset RunRequest fields.
type RunDefaults struct {
	Fields     []string
	MaxChars   int
	Retries    int
	RetryDelay time.Duration
}

// Defaults applies default values to unset fields.
func (r *RunRequest) Defaults(d RunDefaults) {
	if len(r.Fields) == 0 {
		r.Fields = d.Fields
		if len(r.Fields) == 0 {
			r.Fields = DefaultFields
		}
	}
	if r.MaxChars == 0 {
		r.MaxChars = d.MaxChars
	}
	if r.Retries == 0 {
		r.Retries = d.Retries
	}
	if r.RetryDelay == nil {
		r.RetryDelay = DurationOf(d.RetryDelay)
	}
}
