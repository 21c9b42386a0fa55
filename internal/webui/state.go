package webui

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
	"github.com/google/uuid"
)

const (
	maxHistorySize = 100
	maxErrorsSize  = 50
)

// SearchState is the single owner of the displayed search state. Only the
// most recently started run may write results; anything reported under an
// older token is discarded.
type SearchState struct {
	mu            sync.RWMutex
	status        SearchStatus
	currentRun    *RunInfo
	cancelCurrent context.CancelFunc
	lastRun       *RunInfo
	results       []types.ResultEntry
	lastError     *ErrorInfo
	history       []RunInfo
	recentErrors  []ErrorInfo
	events        *RunEvents
	logger        *log.Logger
}

// NewSearchState creates a controller in the ready state
func NewSearchState(events *RunEvents, logger *log.Logger) *SearchState {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SearchState{
		status:       StatusReady,
		results:      []types.ResultEntry{},
		history:      make([]RunInfo, 0, maxHistorySize),
		recentErrors: make([]ErrorInfo, 0, maxErrorsSize),
		events:       events,
		logger:       logger,
	}
}

// Begin starts a run and makes it current. A run still in flight is
// superseded and its context canceled. The returned context carries the
// run token.
func (s *SearchState) Begin(parent context.Context, label string) (context.Context, string) {
	token := uuid.New().String()
	ctx, cancel := context.WithCancel(types.WithRunToken(parent, token))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentRun != nil {
		superseded := *s.currentRun
		superseded.Status = RunSuperseded
		superseded.EndTime = time.Now()
		s.appendHistory(superseded)
		if s.cancelCurrent != nil {
			s.cancelCurrent()
		}
		s.logger.Printf("Search %s superseded by %s", superseded.Token, token)
		s.send(EventTypeSearchSuperseded, superseded.Token, map[string]interface{}{
			"token":       superseded.Token,
			"replaced_by": token,
		})
	}

	s.currentRun = &RunInfo{
		Token:     token,
		Label:     label,
		StartTime: time.Now(),
		Status:    RunRunning,
	}
	s.cancelCurrent = cancel
	s.status = StatusSearching

	s.send(EventTypeSearchStarted, token, map[string]interface{}{
		"token": token,
		"label": label,
	})
	return ctx, token
}

// Complete stores the results of the run identified by token.
// It reports false and changes nothing when token is not current.
func (s *SearchState) Complete(token string, outcome RunOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isCurrentLocked(token) {
		s.logger.Printf("Discarding %d results of stale search %s", len(outcome.Results), token)
		return false
	}

	run := s.finishLocked(RunCompleted)
	origin := outcome.Origin
	run.Origin = &origin
	run.ResolvedAddress = outcome.ResolvedAddress
	run.ResultCount = len(outcome.Results)

	s.results = append([]types.ResultEntry(nil), outcome.Results...)
	s.lastError = nil
	s.status = StatusReady
	s.lastRun = &run
	s.appendHistory(run)

	s.send(EventTypeSearchCompleted, token, map[string]interface{}{
		"run":     run,
		"results": s.results,
	})
	return true
}

// Fail records the failure of the run identified by token and returns the
// controller to an interactive state. Stale tokens are ignored.
func (s *SearchState) Fail(token string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isCurrentLocked(token) {
		s.logger.Printf("Ignoring failure of stale search %s: %v", token, err)
		return false
	}

	run := s.finishLocked(RunFailed)
	run.ErrorType = types.ErrorTypeOf(err)
	run.Error = types.DisplayMessage(err)

	info := ErrorInfo{
		Timestamp: run.EndTime,
		Token:     token,
		Label:     run.Label,
		ErrorType: run.ErrorType,
		Message:   run.Error,
	}
	if se := asSearchError(err); se != nil {
		info.Suggestion = se.Suggestion
	}

	s.results = []types.ResultEntry{}
	s.lastError = &info
	s.status = StatusError
	s.lastRun = &run
	s.appendHistory(run)

	s.recentErrors = append([]ErrorInfo{info}, s.recentErrors...)
	if len(s.recentErrors) > maxErrorsSize {
		s.recentErrors = s.recentErrors[:maxErrorsSize]
	}

	s.send(EventTypeSearchFailed, token, info)
	return true
}

// finishLocked closes the current run (must be called with lock held)
func (s *SearchState) finishLocked(status RunStatus) RunInfo {
	run := *s.currentRun
	run.Status = status
	run.EndTime = time.Now()

	if s.cancelCurrent != nil {
		s.cancelCurrent()
	}
	s.currentRun = nil
	s.cancelCurrent = nil
	return run
}

func (s *SearchState) isCurrentLocked(token string) bool {
	return s.currentRun != nil && s.currentRun.Token == token
}

func (s *SearchState) appendHistory(run RunInfo) {
	s.history = append([]RunInfo{run}, s.history...)
	if len(s.history) > maxHistorySize {
		s.history = s.history[:maxHistorySize]
	}
}

func (s *SearchState) send(kind, token string, data interface{}) {
	if s.events != nil {
		s.events.Publish(RunEvent{Type: kind, Token: token, Data: data})
	}
}

// IsCurrent reports whether token identifies the run in flight
func (s *SearchState) IsCurrent(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isCurrentLocked(token)
}

// GetStatus returns the current status
func (s *SearchState) GetStatus() SearchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns a copy of the displayed state
func (s *SearchState) Snapshot() *APIStatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &APIStatusResponse{
		Status:  s.status,
		Results: append([]types.ResultEntry{}, s.results...),
	}
	if s.currentRun != nil {
		run := *s.currentRun
		snapshot.CurrentRun = &run
	}
	if s.lastRun != nil {
		run := *s.lastRun
		snapshot.LastRun = &run
	}
	if s.lastError != nil {
		errInfo := *s.lastError
		snapshot.LastError = &errInfo
	}
	return snapshot
}

// GetHistory returns the run history, newest first
func (s *SearchState) GetHistory() []RunInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]RunInfo, len(s.history))
	copy(result, s.history)
	return result
}

// GetRecentErrors returns recent errors, newest first
func (s *SearchState) GetRecentErrors() []ErrorInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]ErrorInfo, len(s.recentErrors))
	copy(result, s.recentErrors)
	return result
}
