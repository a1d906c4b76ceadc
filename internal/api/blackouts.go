package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/models"
)

func (s *Server) createBlackout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	blackout, err := models.ParseBlackout(body)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	if err := s.storage.Blackouts().Create(r.Context(), blackout); err != nil {
		s.logger.Error("create blackout failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	Created(w, map[string]any{"id": blackout.ID, "blackout": blackout})
}

func (s *Server) listBlackouts(w http.ResponseWriter, r *http.Request) {
	blackouts, err := s.storage.Blackouts().List(r.Context())
	if err != nil {
		s.logger.Error("list blackouts failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"blackouts": blackouts, "total": len(blackouts)})
}

func (s *Server) deleteBlackout(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Blackouts().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.ruleError(w, err, "delete blackout")
		return
	}
	NoContent(w)
}

// Group membership

func (s *Server) listGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.storage.Groups().Members(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("list group members failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"users": members, "total": len(members)})
}

func (s *Server) addGroupMember(w http.ResponseWriter, r *http.Request) {
	var user models.UserRef
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		JSONError(w, NewBadRequest("invalid request body"))
		return
	}
	if user.ID == "" {
		JSONError(w, NewBadRequest(`missing mandatory value for "id"`))
		return
	}
	if err := s.storage.Groups().AddMember(r.Context(), chi.URLParam(r, "id"), user); err != nil {
		s.logger.Error("add group member failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	Created(w, map[string]any{"user": user})
}

func (s *Server) removeGroupMember(w http.ResponseWriter, r *http.Request) {
	err := s.storage.Groups().RemoveMember(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		s.ruleError(w, err, "remove group member")
		return
	}
	NoContent(w)
}
