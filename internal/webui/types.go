package webui

import (
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
)

// SearchStatus is the state of the search controller
type SearchStatus string

const (
	StatusReady     SearchStatus = "ready"
	StatusSearching SearchStatus = "searching"
	StatusError     SearchStatus = "error"
)

// RunStatus is the final state of one search run
type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunSuperseded RunStatus = "superseded"
)

// Run event types
const (
	EventTypeSearchStarted    = "search_started"
	EventTypeSearchCompleted  = "search_completed"
	EventTypeSearchFailed     = "search_failed"
	EventTypeSearchSuperseded = "search_superseded"
	EventTypeHeartbeat        = "heartbeat"
)

// RunInfo describes one search run
type RunInfo struct {
	Token           string            `json:"token"`
	Label           string            `json:"label"`
	Origin          *types.Coordinate `json:"origin,omitempty"`
	ResolvedAddress string            `json:"resolved_address,omitempty"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time,omitempty"`
	Status          RunStatus         `json:"status"`
	ResultCount     int               `json:"result_count"`
	ErrorType       types.ErrorType   `json:"error_type,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// ErrorInfo represents error information
type ErrorInfo struct {
	Timestamp  time.Time       `json:"timestamp"`
	Token      string          `json:"token"`
	Label      string          `json:"label"`
	ErrorType  types.ErrorType `json:"error_type"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// RunOutcome is what a successful run reports to the state controller
type RunOutcome struct {
	Origin          types.Coordinate
	ResolvedAddress string
	Results         []types.ResultEntry
}

// SearchRequest is the body of POST /api/search and /api/search/device
type SearchRequest struct {
	Address      string   `json:"address,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	IncludePhone bool     `json:"include_phone,omitempty"`
}

// SearchResponse is the successful search API response
type SearchResponse struct {
	Token           string              `json:"token"`
	Query           string              `json:"query"`
	ResolvedAddress string              `json:"resolved_address,omitempty"`
	Origin          types.Coordinate    `json:"origin"`
	Count           int                 `json:"count"`
	Results         []types.ResultEntry `json:"results"`
	Elapsed         string              `json:"elapsed"`
}

// ErrorResponse is the error body of the search API
type ErrorResponse struct {
	Error      string          `json:"error"`
	Type       types.ErrorType `json:"type"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// APIStatusResponse represents the status API response
type APIStatusResponse struct {
	Status     SearchStatus        `json:"status"`
	CurrentRun *RunInfo            `json:"current_run,omitempty"`
	LastRun    *RunInfo            `json:"last_run,omitempty"`
	Results    []types.ResultEntry `json:"results"`
	LastError  *ErrorInfo          `json:"last_error,omitempty"`
}

// IndexPageData represents data for the search page
type IndexPageData struct {
	State           *APIStatusResponse
	DefaultLocation types.Coordinate
	DeviceEnabled   bool
	History         []RunInfo
}
