package webui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ca-srg/halalfinder/internal/metrics"
	"github.com/ca-srg/halalfinder/internal/types"
)

const maxRequestBody = 64 << 10

// handleIndex renders the search page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history := s.state.GetHistory()
	if len(history) > 10 {
		history = history[:10]
	}

	data := &IndexPageData{
		State:           s.state.Snapshot(),
		DefaultLocation: s.deps.DefaultLocation,
		DeviceEnabled:   s.deps.Locator != nil,
		History:         history,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Render(w, "index.html", data); err != nil {
		s.logger.Printf("Failed to render index: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleSearch handles POST /api/search with an address or a coordinate
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.RecordInvocation(metrics.ModeAPI)

	var req SearchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeSearchError(w, types.NewSearchError(types.ErrorTypeValidation, types.MessageInvalidSearchRequest, err))
		return
	}

	switch {
	case req.Lat != nil || req.Lng != nil:
		if req.Lat == nil || req.Lng == nil {
			s.writeSearchError(w, types.NewSearchError(types.ErrorTypeValidation, types.MessageInvalidSearchRequest,
				errors.New("lat and lng must be given together")))
			return
		}
		loc, err := types.NewCoordinate(*req.Lat, *req.Lng)
		if err != nil {
			s.writeSearchError(w, types.NewSearchError(types.ErrorTypeValidation, types.MessageInvalidSearchRequest, err))
			return
		}
		s.executeSearch(w, r, req, loc.String(), func(ctx context.Context) (RunOutcome, error) {
			results, err := s.deps.Searcher.Run(ctx, loc)
			return RunOutcome{Origin: loc, Results: results}, err
		})

	case strings.TrimSpace(req.Address) != "":
		address := strings.TrimSpace(req.Address)
		s.executeSearch(w, r, req, address, func(ctx context.Context) (RunOutcome, error) {
			results, match, err := s.deps.Searcher.RunFromAddress(ctx, address)
			outcome := RunOutcome{Results: results}
			if match != nil {
				outcome.Origin = match.Location
				outcome.ResolvedAddress = match.FormattedAddress
			}
			return outcome, err
		})

	default:
		s.writeSearchError(w, types.NewSearchError(types.ErrorTypeValidation, types.MessageInvalidSearchRequest, nil))
	}
}

// handleDeviceSearch handles POST /api/search/device
func (s *Server) handleDeviceSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.RecordInvocation(metrics.ModeAPI)

	var req SearchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeSearchError(w, types.NewSearchError(types.ErrorTypeValidation, types.MessageInvalidSearchRequest, err))
		return
	}

	s.executeSearch(w, r, req, "Current location", func(ctx context.Context) (RunOutcome, error) {
		if s.deps.Locator == nil {
			return RunOutcome{}, types.NewSearchError(types.ErrorTypeDeviceLocationDenied, types.MessageDeviceDenied,
				errors.New("device location is not configured"))
		}
		loc, err := s.deps.Locator.Locate(ctx)
		if err != nil {
			return RunOutcome{}, err
		}
		results, err := s.deps.Searcher.Run(ctx, loc)
		if err != nil {
			return RunOutcome{Origin: loc}, err
		}
		return RunOutcome{
			Origin:          loc,
			ResolvedAddress: s.deps.Searcher.Describe(ctx, loc),
			Results:         results,
		}, nil
	})
}

// executeSearch runs one search under a fresh run token and writes the response.
// Results of a run superseded in the meantime are discarded.
func (s *Server) executeSearch(w http.ResponseWriter, r *http.Request, req SearchRequest, label string, run func(ctx context.Context) (RunOutcome, error)) {
	start := time.Now()

	ctx, token := s.state.Begin(r.Context(), label)
	if s.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SearchTimeout)
		defer cancel()
	}

	outcome, err := run(ctx)
	if err == nil && req.IncludePhone && s.deps.Enricher != nil {
		outcome.Results = s.deps.Enricher.Enrich(ctx, outcome.Results)
	}

	if err != nil {
		if !s.state.Fail(token, err) {
			s.writeSuperseded(w)
			return
		}
		s.logger.Printf("Search %q failed: %v", label, err)
		s.writeSearchError(w, err)
		return
	}

	if !s.state.Complete(token, outcome) {
		s.writeSuperseded(w)
		return
	}

	results := limitResults(outcome.Results, req.Limit)
	s.writeJSON(w, &SearchResponse{
		Token:           token,
		Query:           label,
		ResolvedAddress: outcome.ResolvedAddress,
		Origin:          outcome.Origin,
		Count:           len(results),
		Results:         results,
		Elapsed:         time.Since(start).Round(time.Millisecond).String(),
	})
}

func limitResults(results []types.ResultEntry, limit int) []types.ResultEntry {
	if results == nil {
		return []types.ResultEntry{}
	}
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// handleAPIStatus handles the status API
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.state.Snapshot())
}

// handleAPIHistory handles the history API
func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.state.GetHistory())
}

// handleAPIErrors handles the errors API
func (s *Server) handleAPIErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.state.GetRecentErrors())
}

func asSearchError(err error) *types.SearchError {
	var se *types.SearchError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// statusCodeFor maps an error kind to its HTTP status
func statusCodeFor(errType types.ErrorType) int {
	switch errType {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeLocationNotFound, types.ErrorTypeNoResults:
		return http.StatusNotFound
	case types.ErrorTypeDeviceLocationDenied:
		return http.StatusForbidden
	case types.ErrorTypeDeviceLocationUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrorTypeDeviceLocationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	response := &ErrorResponse{
		Error: types.DisplayMessage(err),
		Type:  types.ErrorTypeOf(err),
	}
	if se := asSearchError(err); se != nil {
		response.Suggestion = se.Suggestion
	}
	s.writeJSONStatus(w, statusCodeFor(response.Type), response)
}

func (s *Server) writeSuperseded(w http.ResponseWriter) {
	s.writeJSONStatus(w, http.StatusConflict, &ErrorResponse{
		Error: types.MessageSearchSuperseded,
		Type:  "superseded",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("Failed to encode JSON: %v", err)
	}
}
