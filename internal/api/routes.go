package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dharsanguruparan/esubmit/internal/metrics"
)

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	a := r.PathPrefix("/api/auth").Subrouter()
	a.HandleFunc("/login", s.throttle(s.handleLogin)).Methods(http.MethodPost)
	a.HandleFunc("/register", s.throttle(s.handleRegister)).Methods(http.MethodPost)
	a.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	a.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	a.HandleFunc("/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	a.HandleFunc("/change-password", s.handleChangePassword).Methods(http.MethodPost)
	a.HandleFunc("/account/delete", s.handleDeleteAccount).Methods(http.MethodPost)

	f := r.PathPrefix("/api/forms").Subrouter()
	f.HandleFunc("", s.handleListForms).Methods(http.MethodGet)
	f.HandleFunc("", s.handleCreateForm).Methods(http.MethodPost)
	f.HandleFunc("/{formId}", s.handleGetForm).Methods(http.MethodGet)
	f.HandleFunc("/{formId}", s.handleUpdateForm).Methods(http.MethodPut)
	f.HandleFunc("/{formId}/schema", s.handleFormSchema).Methods(http.MethodGet)
	f.HandleFunc("/{formId}/validate", s.handleValidate).Methods(http.MethodPost)
	f.HandleFunc("/{formId}/submit", s.handleSubmit).Methods(http.MethodPost)
	f.HandleFunc("/{formId}/draft", s.handleSaveDraft).Methods(http.MethodPost)

	sub := r.PathPrefix("/api/submissions").Subrouter()
	sub.HandleFunc("", s.handleListSubmissions).Methods(http.MethodGet)
	sub.HandleFunc("/{id}", s.handleGetSubmission).Methods(http.MethodGet)
	sub.HandleFunc("/{id}", s.handleDeleteSubmission).Methods(http.MethodDelete)
	sub.HandleFunc("/{id}/draft", s.handleUpdateDraft).Methods(http.MethodPut)
	sub.HandleFunc("/{id}/submit", s.handleSubmitDraft).Methods(http.MethodPost)
	sub.HandleFunc("/{id}/files", s.handleSubmissionFiles).Methods(http.MethodGet)

	fl := r.PathPrefix("/api/files").Subrouter()
	fl.HandleFunc("", s.handleUpload).Methods(http.MethodPost)
	fl.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	fl.HandleFunc("/signed", s.handleSignedDownload).Methods(http.MethodGet)
	fl.HandleFunc("/{fileId}", s.handleFileInfo).Methods(http.MethodGet)
	fl.HandleFunc("/{fileId}", s.handleDeleteFile).Methods(http.MethodDelete)
	fl.HandleFunc("/{fileId}/download", s.handleDownload).Methods(http.MethodGet)
	fl.HandleFunc("/{fileId}/signed-url", s.handleSignedURL).Methods(http.MethodGet, http.MethodPost)

	ad := r.PathPrefix("/api/admin").Subrouter()
	ad.HandleFunc("/submissions", s.handleListSubmissions).Methods(http.MethodGet)
	ad.HandleFunc("/submissions/{id}", s.handleReview).Methods(http.MethodPut)
	ad.HandleFunc("/submissions/{id}", s.handleDeleteSubmission).Methods(http.MethodDelete)
	ad.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)
	ad.HandleFunc("/seed-sample-form", s.handleSeedSample).Methods(http.MethodPost)
	ad.HandleFunc("/forms/{formId}", s.handleDeleteForm).Methods(http.MethodDelete)
	ad.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	ad.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	ad.HandleFunc("/users/{id}", s.handleUpdateUser).Methods(http.MethodPut)
	ad.HandleFunc("/admins", s.handleListAdmins).Methods(http.MethodGet)
	ad.HandleFunc("/admins", s.handleCreateAdmin).Methods(http.MethodPost)
	ad.HandleFunc("/admins/{id}", s.handleGetAdmin).Methods(http.MethodGet)
	ad.HandleFunc("/admins/{id}", s.handleUpdateAdmin).Methods(http.MethodPut)
	ad.HandleFunc("/admins/{id}", s.handleDeleteAdmin).Methods(http.MethodDelete)
	ad.HandleFunc("/roles", s.handleRoles).Methods(http.MethodGet)

	p := r.PathPrefix("/api/payments").Subrouter()
	p.HandleFunc("/submissions/{id}/create", s.handleCreatePayment).Methods(http.MethodPost)
	p.HandleFunc("/submissions/{id}", s.handlePaymentForSubmission).Methods(http.MethodGet)
	p.HandleFunc("/{paymentId}", s.handleGetPayment).Methods(http.MethodGet)
	p.HandleFunc("/{paymentId}", s.handleUpdatePayment).Methods(http.MethodPut)
	p.HandleFunc("/{paymentId}/process", s.handleProcessPayment).Methods(http.MethodPost)
}
