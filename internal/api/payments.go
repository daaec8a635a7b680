package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/service"
)

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var in service.PaymentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.svc.Payments.Create(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handlePaymentForSubmission(w http.ResponseWriter, r *http.Request) {
	pay, err := s.svc.Payments.GetBySubmission(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pay)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	pay, err := s.svc.Payments.Get(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["paymentId"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pay)
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var in service.PaymentUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	pay, err := s.svc.Payments.Update(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["paymentId"], in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pay)
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Payments.Process(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["paymentId"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}
