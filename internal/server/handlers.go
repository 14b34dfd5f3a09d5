package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightloop/qgateway/internal/anthropic"
	"github.com/brightloop/qgateway/internal/apierr"
	"github.com/brightloop/qgateway/internal/convert"
	"github.com/brightloop/qgateway/internal/events"
	"github.com/brightloop/qgateway/internal/sse"
	"github.com/brightloop/qgateway/internal/telemetry"
	"github.com/brightloop/qgateway/internal/upstream"
)

func writeAuthError(w http.ResponseWriter, r *http.Request) {
	apierr.WriteJSON(w, middleware.GetReqID(r.Context()), apierr.New(apierr.KindAuthentication, "missing or invalid API key"))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list := anthropic.ModelList{Data: catalog, HasMore: false}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	model, ok := modelByID(id)
	if !ok {
		apierr.WriteJSON(w, middleware.GetReqID(r.Context()), apierr.New(apierr.KindNotFound, "model: "+id+" not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(model)
}

// handleMessages implements POST /v1/messages: validate, convert, fetch a
// valid token, call upstream, and fan the decoded event stream out to
// either an SSE emitter (stream=true) or a single aggregated JSON
// response (stream=false), per spec §4.8.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	start := time.Now()

	var req anthropic.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteJSON(w, reqID, apierr.New(apierr.KindInvalidRequest, "invalid JSON body: "+err.Error()))
		return
	}
	s.Telemetry.OnRequestStart(telemetry.StartEvent{RequestID: reqID, Route: "/v1/messages", Model: req.Model, Stream: req.Stream, Start: start})

	if err := validateMessagesRequest(req); err != nil {
		s.finishMessages(reqID, "/v1/messages", start, apierrStatus(err), err, 0, 0)
		apierr.WriteJSON(w, reqID, err)
		return
	}

	state, err := convert.Build(req)
	if err != nil {
		wrapped := apierr.Wrap(apierr.KindInvalidRequest, "could not convert request", err)
		s.finishMessages(reqID, "/v1/messages", start, wrapped.Status(), wrapped, 0, 0)
		apierr.WriteJSON(w, reqID, wrapped)
		return
	}

	accessToken, err := s.Tokens.EnsureValidToken(r.Context())
	if err != nil {
		s.finishMessages(reqID, "/v1/messages", start, apierrStatus(err), err, 0, 0)
		apierr.WriteJSON(w, reqID, err)
		return
	}

	body, err := s.Upstream.Send(r.Context(), accessToken, state)
	if err != nil {
		s.finishMessages(reqID, "/v1/messages", start, apierrStatus(err), err, 0, 0)
		apierr.WriteJSON(w, reqID, err)
		return
	}
	defer body.Close()

	agg := upstream.NewStreamAggregator()

	if req.Stream {
		s.streamMessages(w, r, req.Model, agg, body, reqID, start)
		return
	}
	s.aggregateMessages(w, r, req.Model, agg, body, reqID, start)
}

func (s *Server) finishMessages(reqID, route string, start time.Time, status int, err error, inToks, outToks int) {
	s.Telemetry.OnRequestEnd(telemetry.EndEvent{
		RequestID: reqID, Route: route, Status: status, Duration: time.Since(start),
		Err: err, InputToks: inToks, OutputToks: outToks,
	})
}

func apierrStatus(err error) int {
	var gerr *apierr.Error
	if errors.As(err, &gerr) {
		return gerr.Status()
	}
	return http.StatusInternalServerError
}

// streamMessages drains the decoded upstream event stream into an SSE
// emitter writing directly to w (spec §4.5/§4.8).
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, model string, agg *upstream.StreamAggregator, body interface {
	Read(p []byte) (n int, err error)
}, reqID string, start time.Time) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emitter := sse.NewEmitter(w, flusher, model)

	var lastInputToks int
	runErr := agg.Run(r.Context(), body, func(ev events.Event) error {
		if ev.Kind == events.KindContextUsage {
			lastInputToks = int(ev.ContextUsagePercentage/100*float64(sse.DefaultContextWindowTokens) + 0.5)
		}
		return emitter.HandleEvent(ev)
	})

	status := http.StatusOK
	if runErr != nil && !emitter.Terminated() {
		status = http.StatusInternalServerError
	}
	s.finishMessages(reqID, "/v1/messages", start, status, runErr, lastInputToks, 1)
}

// aggregateMessages drains the decoded upstream event stream into a
// single non-streaming Anthropic response (spec §4.5 "non-streaming
// aggregation").
func (s *Server) aggregateMessages(w http.ResponseWriter, r *http.Request, model string, agg *upstream.StreamAggregator, body interface {
	Read(p []byte) (n int, err error)
}, reqID string, start time.Time) {
	aggregator := sse.NewAggregator(model)

	runErr := agg.Run(r.Context(), body, func(ev events.Event) error {
		aggregator.HandleEvent(ev)
		return nil
	})
	if runErr != nil {
		wrapped := apierr.Wrap(apierr.KindAPIError, "upstream stream processing failed", runErr)
		s.finishMessages(reqID, "/v1/messages", start, wrapped.Status(), wrapped, 0, 0)
		apierr.WriteJSON(w, reqID, wrapped)
		return
	}

	resp, err := aggregator.Result()
	if err != nil {
		wrapped := apierr.Wrap(apierr.KindAPIError, "failed to assemble response", err)
		s.finishMessages(reqID, "/v1/messages", start, wrapped.Status(), wrapped, 0, 0)
		apierr.WriteJSON(w, reqID, wrapped)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
	s.finishMessages(reqID, "/v1/messages", start, http.StatusOK, nil, resp.Usage.InputTokens, resp.Usage.OutputTokens)
}

// handleCountTokens implements POST /v1/messages/count_tokens with a
// heuristic estimator (spec §1 explicitly leaves exact tokenization out
// of scope; a deterministic approximation is still needed for a working
// endpoint).
func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	var req anthropic.CountTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteJSON(w, reqID, apierr.New(apierr.KindInvalidRequest, "invalid JSON body: "+err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(anthropic.CountTokensResponse{InputTokens: estimateTokens(req)})
}
