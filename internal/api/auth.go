package api

import (
	"net/http"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/service"
)

type message struct {
	Message string `json:"message"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.Credentials
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.svc.Accounts.Login(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.Registration
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.svc.Accounts.Register(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.svc.Accounts.Logout(r.Context(), token); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, message{Message: "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	prof, err := s.svc.Accounts.Profile(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"user": prof, "role": prof.Role})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.AccountUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	prof, err := s.svc.Accounts.UpdateProfile(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, prof)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	if in.CurrentPassword == "" || in.NewPassword == "" {
		s.respondError(w, r, apperr.Invalid("currentPassword and newPassword are required"))
		return
	}
	if err := s.svc.Accounts.ChangePassword(r.Context(), auth.FromContext(r.Context()), in.CurrentPassword, in.NewPassword); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, message{Message: "Password changed successfully"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.svc.Accounts.DeleteAccount(r.Context(), auth.FromContext(r.Context()), in.Password); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, message{Message: "Account deleted successfully"})
}
