package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/service"
)

type roleInfo struct {
	Role        model.Role `json:"role"`
	Description string     `json:"description"`
}

var roles = []roleInfo{
	{model.RoleUser, "Applicant who fills in and submits forms"},
	{model.RoleAdmin, "Reviews submissions and manages applicants"},
	{model.RoleSuperAdmin, "Full access including admin account management"},
}

func requireAdmin(p *auth.Principal) error {
	if p == nil {
		return apperr.ErrUnauthorized
	}
	if !p.IsAdmin() {
		return apperr.Forbidden("admin access required")
	}
	return nil
}

func (s *Server) handleSeedSample(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(auth.FromContext(r.Context())); err != nil {
		s.respondError(w, r, err)
		return
	}
	created, err := s.svc.Forms.SeedSample(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	msg := "Sample form already exists"
	status := http.StatusOK
	if created {
		msg = "Sample form created"
		status = http.StatusCreated
	}
	s.respondJSON(w, status, map[string]any{
		"message": msg,
		"formId":  service.SampleFormID,
		"created": created,
	})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(auth.FromContext(r.Context())); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, roles)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Accounts.ListUsers(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Accounts.GetUser(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in service.AccountUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.svc.Accounts.UpdateUser(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := s.svc.Accounts.ListAdmins(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, admins)
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var in service.Registration
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := s.svc.Accounts.CreateAdmin(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAdmin(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Accounts.GetAdmin(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAdmin(w http.ResponseWriter, r *http.Request) {
	var in service.AccountUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := s.svc.Accounts.UpdateAdmin(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Accounts.DeleteAdmin(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
