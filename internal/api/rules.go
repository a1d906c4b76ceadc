package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// Notification rules

func (s *Server) createNotificationRule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	rule, err := models.ParseNotificationRule(body)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	if err := s.storage.Rules().CreateNotificationRule(r.Context(), rule); err != nil {
		s.logger.Error("create notification rule failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	Created(w, map[string]any{"id": rule.ID, "notificationRule": rule})
}

func (s *Server) getNotificationRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.storage.Rules().GetNotificationRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.ruleError(w, err, "get notification rule")
		return
	}
	OK(w, map[string]any{"notificationRule": rule})
}

func (s *Server) listNotificationRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.storage.Rules().ListNotificationRules(r.Context())
	if err != nil {
		s.logger.Error("list notification rules failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"notificationRules": rules, "total": len(rules)})
}

func (s *Server) updateNotificationRule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	rule, err := models.ParseNotificationRule(body)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	rule.ID = chi.URLParam(r, "id")
	if err := s.storage.Rules().UpdateNotificationRule(r.Context(), rule); err != nil {
		s.ruleError(w, err, "update notification rule")
		return
	}
	OK(w, map[string]any{"notificationRule": rule})
}

func (s *Server) deleteNotificationRule(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Rules().DeleteNotificationRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.ruleError(w, err, "delete notification rule")
		return
	}
	NoContent(w)
}

// Escalation rules

func (s *Server) createEscalationRule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	rule, err := models.ParseEscalationRule(body)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	if err := s.storage.Rules().CreateEscalationRule(r.Context(), rule); err != nil {
		s.logger.Error("create escalation rule failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	Created(w, map[string]any{"id": rule.ID, "escalationRule": rule})
}

func (s *Server) getEscalationRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.storage.Rules().GetEscalationRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.ruleError(w, err, "get escalation rule")
		return
	}
	OK(w, map[string]any{"escalationRule": rule})
}

func (s *Server) listEscalationRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.storage.Rules().ListEscalationRules(r.Context())
	if err != nil {
		s.logger.Error("list escalation rules failed", zap.Error(err))
		JSONError(w, ErrInternalServer)
		return
	}
	OK(w, map[string]any{"escalationRules": rules, "total": len(rules)})
}

func (s *Server) updateEscalationRule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBody))
	if err != nil {
		JSONError(w, NewBadRequest("failed to read request body"))
		return
	}
	rule, err := models.ParseEscalationRule(body)
	if err != nil {
		JSONError(w, NewValidationError(err.Error()))
		return
	}
	rule.ID = chi.URLParam(r, "id")
	if err := s.storage.Rules().UpdateEscalationRule(r.Context(), rule); err != nil {
		s.ruleError(w, err, "update escalation rule")
		return
	}
	OK(w, map[string]any{"escalationRule": rule})
}

func (s *Server) deleteEscalationRule(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Rules().DeleteEscalationRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.ruleError(w, err, "delete escalation rule")
		return
	}
	NoContent(w)
}

func (s *Server) ruleError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, storage.ErrNotFound) {
		JSONError(w, ErrNotFound)
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	JSONError(w, ErrInternalServer)
}
