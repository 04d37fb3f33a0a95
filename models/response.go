package models

import (
	"encoding/json"
	"time"
)

// RunStampLayout formats run stamps at second granularity so they sort
// lexically in time order.
const RunStampLayout = "20060102_150405"

// RunStamp identifies one run and names all of its artifacts.
type RunStamp string

// NewRunStamp formats t as a RunStamp.
func NewRunStamp(t time.Time) RunStamp {
	return RunStamp(t.Format(RunStampLayout))
}

func (s RunStamp) String() string { return string(s) }

// Extraction is the structured data parsed from the model's reply.
// Data is always a JSON object or a JSON array of objects.
type Extraction struct {
	Data  json.RawMessage
	Usage *LLMUsage
}

// LLMUsage reports token consumption from the LLM call.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Artifacts lists where a run's outputs were stored.
type Artifacts struct {
	Raw   string `json:"raw,omitempty"`
	JSON  string `json:"json,omitempty"`
	Table string `json:"table,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	TotalMs      int64 `json:"total_ms"`
	FetchMs      int64 `json:"fetch_ms"`
	ExtractionMs int64 `json:"extraction_ms"`
	StorageMs    int64 `json:"storage_ms"`
}

// RunReport summarises a completed run.
type RunReport struct {
	Stamp     RunStamp        `json:"stamp"`
	URL       string          `json:"url"`
	Provider  string          `json:"provider"`
	Attempts  int             `json:"attempts"`
	Cached    bool            `json:"cached,omitempty"`
	Records   int             `json:"records"`
	Data      json.RawMessage `json:"data,omitempty"`
	Artifacts Artifacts       `json:"artifacts"`
	Timing    TimingInfo      `json:"timing"`
	LLMUsage  *LLMUsage       `json:"llm_usage,omitempty"`
}

// RunResponse is the response for POST /api/v1/runs.
type RunResponse struct {
	// Success indicates whether the run completed without errors.
	Success bool `json:"success"`

	// Report is populated only when Success is true.
	Report *RunReport `json:"report,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Version  string `json:"version"`
}
