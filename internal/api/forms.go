package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/service"
)

func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := s.svc.Forms.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, forms)
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.svc.Forms.Get(r.Context(), mux.Vars(r)["formId"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, form)
}

func (s *Server) handleFormSchema(w http.ResponseWriter, r *http.Request) {
	form, err := s.svc.Forms.Get(r.Context(), mux.Vars(r)["formId"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"formId":     form.FormID,
		"name":       form.Name,
		"version":    form.Version,
		"schemaData": form.SchemaData,
	})
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var in service.FormInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	form, err := s.svc.Forms.Create(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, form)
}

func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	var in service.FormPatch
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	form, err := s.svc.Forms.Update(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["formId"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, form)
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Forms.Delete(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["formId"]); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
