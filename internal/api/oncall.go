package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/models"
)

func (s *Server) createOnCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	onCall, err := models.ParseOnCall(body)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	if err := s.storage.OnCalls().Create(r.Context(), onCall); err != nil {
		s.logger.Error("create on-call failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	Created(w, map[string]any{"id": onCall.ID, "onCall": onCall})
}

func (s *Server) getOnCall(w http.ResponseWriter, r *http.Request) {
	onCall, err := s.storage.OnCalls().GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.ruleError(w, err, "get on-call")
		return
	}
	OK(w, map[string]any{"onCall": onCall})
}

func (s *Server) listOnCalls(w http.ResponseWriter, r *http.Request) {
	onCalls, err := s.storage.OnCalls().List(r.Context())
	if err != nil {
		s.logger.Error("list on-calls failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"onCalls": onCalls, "total": len(onCalls)})
}

// listActiveOnCallUsers resolves who is on call right now, with group
// expansion applied.
func (s *Server) listActiveOnCallUsers(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		OK(w, map[string]any{"users": []models.UserRef{}, "total": 0})
		return
	}
	users, err := s.resolver.UsersOnCallNow(r.Context(), time.Now().UTC())
	if err != nil {
		s.logger.Error("resolve on-call users failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"users": users, "total": len(users)})
}

func (s *Server) updateOnCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	onCall, err := models.ParseOnCall(body)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	onCall.ID = chi.URLParam(r, "id")
	if err := s.storage.OnCalls().Update(r.Context(), onCall); err != nil {
		s.ruleError(w, err, "update on-call")
		return
	}
	OK(w, map[string]any{"onCall": onCall})
}

func (s *Server) deleteOnCall(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.OnCalls().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.ruleError(w, err, "delete on-call")
		return
	}
	NoContent(w)
}
