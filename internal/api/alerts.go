package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/metrics"
	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/notifier"
	"github.com/good-yellow-bee/flare/internal/plugin"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// maxAlertBody bounds the accepted request body for alert receipts.
const maxAlertBody = 1 << 20

// receiveAlert ingests one alert receipt through the full pipeline and, for
// persisted alerts, fans out notification deliveries. Dispatch failures are
// logged and never affect the response.
func (s *Server) receiveAlert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	alert, err := models.ParseAlert(body)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			JSONError(w, NewValidationError(verr.Error()))
			return
		}
		JSONError(w, NewBadRequest(err.Error()))
		return
	}

	outcome, err := s.pipeline.ProcessAlert(r.Context(), alert)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			JSONError(w, NewValidationError(verr.Error()))
			return
		}
		s.logger.Error("alert processing failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}

	metrics.ReceiptsTotal.WithLabelValues(outcome.Kind.String()).Inc()
	metrics.ProcessDuration.Observe(time.Since(start).Seconds())

	switch outcome.Kind {
	case plugin.Processed:
		s.notify(outcome.Alert)
		Created(w, map[string]any{"alert": outcome.Alert})
	case plugin.Rejected:
		JSONError(w, NewForbidden(outcome.Reason))
	case plugin.RateLimited:
		JSONError(w, ErrRateLimited)
	case plugin.ConvertedToHeartbeat:
		Accepted(w, map[string]any{"heartbeatId": outcome.HeartbeatID, "message": outcome.Reason})
	default:
		Accepted(w, map[string]any{"message": outcome.Reason})
	}
}

// notify plans and dispatches deliveries for a freshly persisted alert.
// Runs synchronously up to planning; the sends themselves are asynchronous.
func (s *Server) notify(alert *models.Alert) {
	if s.matcher == nil || s.dispatcher == nil {
		return
	}
	if s.model != nil && s.model.IsSuppressed(alert.Status) {
		return
	}
	now := time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RequestTimeout)
	defer cancel()

	rules, err := s.matcher.NotificationRulesFor(ctx, alert, now)
	if err != nil {
		s.logger.Error("match notification rules failed", zap.Error(err))
		return
	}
	if len(rules) == 0 {
		return
	}

	var onCallUsers []models.UserRef
	needOnCall := false
	for _, rule := range rules {
		if rule.UseOnCall {
			needOnCall = true
			break
		}
	}
	if needOnCall && s.resolver != nil {
		onCallUsers, err = s.resolver.UsersOnCallNow(ctx, now)
		if err != nil {
			s.logger.Error("resolve on-call users failed", zap.Error(err))
		}
	}

	deliveries, planErrs := notifier.Plan(alert, rules, onCallUsers)
	for _, perr := range planErrs {
		s.logger.Error("notification planning failed", zap.Error(perr))
	}
	for _, d := range deliveries {
		metrics.NotificationsPlanned.WithLabelValues(d.ChannelID).Inc()
	}
	s.dispatcher.Dispatch(deliveries)
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, err := s.storage.Alerts().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrNotFound)
			return
		}
		s.logger.Error("get alert failed", zap.String("id", id), zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"alert": alert})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	environment := r.URL.Query().Get("environment")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			JSONError(w, NewBadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	alerts, err := s.storage.Alerts().List(r.Context(), environment, limit)
	if err != nil {
		s.logger.Error("list alerts failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"alerts": alerts, "total": len(alerts)})
}

func (s *Server) deleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.pipeline.ProcessDelete(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrNotFound)
			return
		}
		JSONError(w, NewForbidden(err.Error()))
		return
	}
	NoContent(w)
}

type statusRequest struct {
	Status  string `json:"status"`
	Text    string `json:"text"`
	Timeout *int   `json:"timeout"`
}

func (s *Server) setAlertStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid request body"))
		return
	}
	if req.Status == "" {
		JSONError(w, NewBadRequest(`missing mandatory value for "status"`))
		return
	}
	timeout := s.config.AlertTimeout
	if req.Timeout != nil {
		timeout = *req.Timeout
	}

	alert, err := s.pipeline.ProcessStatusChange(r.Context(), id, req.Status, req.Text, timeout)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrNotFound)
			return
		}
		JSONError(w, NewForbidden(err.Error()))
		return
	}
	OK(w, map[string]any{"alert": alert})
}

type actionRequest struct {
	Action  string `json:"action"`
	Text    string `json:"text"`
	Timeout *int   `json:"timeout"`
}

func (s *Server) actionAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid request body"))
		return
	}
	if req.Action == "" {
		JSONError(w, NewBadRequest(`missing mandatory value for "action"`))
		return
	}
	timeout := s.config.AlertTimeout
	if req.Timeout != nil {
		timeout = *req.Timeout
	}

	alert, err := s.pipeline.ProcessAction(r.Context(), id, req.Action, req.Text, timeout)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			JSONError(w, ErrNotFound)
			return
		}
		JSONError(w, NewForbidden(err.Error()))
		return
	}
	OK(w, map[string]any{"alert": alert})
}

type tagRequest struct {
	Tags []string `json:"tags"`
}

func (s *Server) tagAlert(w http.ResponseWriter, r *http.Request) {
	s.mutateTags(w, r, s.storage.Alerts().Tag)
}

func (s *Server) untagAlert(w http.ResponseWriter, r *http.Request) {
	s.mutateTags(w, r, s.storage.Alerts().Untag)
}

func (s *Server) mutateTags(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string, tags []string) (bool, error)) {
	id := chi.URLParam(r, "id")
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid request body"))
		return
	}
	if len(req.Tags) == 0 {
		JSONError(w, NewBadRequest(`missing mandatory value for "tags"`))
		return
	}

	updated, err := op(r.Context(), id, req.Tags)
	if err != nil {
		s.logger.Error("tag update failed", zap.String("id", id), zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	if !updated {
		JSONError(w, ErrNotFound)
		return
	}
	NoContent(w)
}

type attributesRequest struct {
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) updateAlertAttributes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req attributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid request body"))
		return
	}
	if req.Attributes == nil {
		JSONError(w, NewBadRequest(`missing mandatory value for "attributes"`))
		return
	}

	updated, err := s.storage.Alerts().UpdateAttributes(r.Context(), id, req.Attributes)
	if err != nil {
		s.logger.Error("attribute update failed", zap.String("id", id), zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	if !updated {
		JSONError(w, ErrNotFound)
		return
	}
	NoContent(w)
}

func (s *Server) listHeartbeats(w http.ResponseWriter, r *http.Request) {
	if s.heartbeats == nil {
		OK(w, map[string]any{"heartbeats": []plugin.Heartbeat{}, "total": 0})
		return
	}
	all := s.heartbeats.All()
	OK(w, map[string]any{"heartbeats": all, "total": len(all)})
}
