package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/service"
)

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Data   model.Data `json:"data"`
		StepID string     `json:"stepId"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.Submissions.Validate(r.Context(), mux.Vars(r)["formId"], in.Data, in.StepID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.Submissions.Submit(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["formId"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	sub, err := s.svc.Submissions.SaveDraft(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["formId"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	sub, err := s.svc.Submissions.UpdateDraft(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.Submissions.SubmitDraft(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subs, err := s.svc.Submissions.List(r.Context(), auth.FromContext(r.Context()), service.ListFilter{
		FormID:   q.Get("formId"),
		Status:   model.SubmissionStatus(q.Get("status")),
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "pageSize"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.Submissions.Get(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Submissions.Delete(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmissionFiles(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.Submissions.Get(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	files, err := s.svc.Files.ForSubmission(r.Context(), sub.SubmissionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, files)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var in service.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	sub, err := s.svc.Submissions.Review(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Submissions.Statistics(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}
