package store

import (
	"time"

	"github.com/dharsanguruparan/esubmit/internal/model"
)

// Form filters accepted by FormsByStatus.
const (
	FormStatusActive   = "active"
	FormStatusInactive = "inactive"
	FormStatusAll      = "all"
)

func newestFormFirst(a, b model.Form) bool { return a.CreatedAt.After(b.CreatedAt) }

// FormsByStatus selects active, inactive or all forms, newest first.
func FormsByStatus(status string) Query[model.Form] {
	q := Query[model.Form]{
		Match: func(model.Form) bool { return true },
		Order: "created_at desc",
		Less:  newestFormFirst,
	}
	switch status {
	case FormStatusActive:
		q.Scope = ScopeWhere("is_active = ?", true)
		q.Match = func(f model.Form) bool { return f.IsActive }
	case FormStatusInactive:
		q.Scope = ScopeWhere("is_active = ?", false)
		q.Match = func(f model.Form) bool { return !f.IsActive }
	}
	return q
}

func newestSubmissionFirst(a, b model.Submission) bool { return a.UpdatedAt.After(b.UpdatedAt) }

// AllSubmissions selects every submission, most recently updated first.
func AllSubmissions() Query[model.Submission] {
	return Query[model.Submission]{
		Match: func(model.Submission) bool { return true },
		Order: "updated_at desc",
		Less:  newestSubmissionFirst,
	}
}

// SubmissionsBy selects the submissions owned by userID.
func SubmissionsBy(userID string) Query[model.Submission] {
	q := AllSubmissions()
	q.Scope = ScopeWhere("submitted_by = ?", userID)
	q.Match = func(s model.Submission) bool { return s.SubmittedBy == userID }
	return q
}

// SubmissionsWithStatus selects submissions in one status.
func SubmissionsWithStatus(status model.SubmissionStatus) Query[model.Submission] {
	q := AllSubmissions()
	q.Scope = ScopeWhere("status = ?", status)
	q.Match = func(s model.Submission) bool { return s.Status == status }
	return q
}

// SubmissionsForForm selects submissions of one form.
func SubmissionsForForm(formID string) Query[model.Submission] {
	q := AllSubmissions()
	q.Scope = ScopeWhere("form_id = ?", formID)
	q.Match = func(s model.Submission) bool { return s.FormID == formID }
	return q
}

// FilesForSubmission selects the uploads linked to a submission.
func FilesForSubmission(submissionID string) Query[model.FileRecord] {
	return Query[model.FileRecord]{
		Scope: ScopeWhere("submission_id = ?", submissionID),
		Match: func(f model.FileRecord) bool { return f.SubmissionID == submissionID },
		Order: "uploaded_at asc",
		Less:  func(a, b model.FileRecord) bool { return a.UploadedAt.Before(b.UploadedAt) },
	}
}

// PaymentForSubmission selects the payment of a submission.
func PaymentForSubmission(submissionID string) Query[model.Payment] {
	return Query[model.Payment]{
		Scope: ScopeWhere("submission_id = ?", submissionID),
		Match: func(p model.Payment) bool { return p.SubmissionID == submissionID },
	}
}

// UserByEmail selects a user by email.
func UserByEmail(email string) Query[model.User] {
	email = model.NormalizeEmail(email)
	return Query[model.User]{
		Scope: ScopeWhere("email = ?", email),
		Match: func(u model.User) bool { return u.HasEmail(email) },
	}
}

// AdminByEmail selects an admin by email.
func AdminByEmail(email string) Query[model.Admin] {
	email = model.NormalizeEmail(email)
	return Query[model.Admin]{
		Scope: ScopeWhere("email = ?", email),
		Match: func(a model.Admin) bool { return a.HasEmail(email) },
	}
}

// AllUsers selects every user, oldest first.
func AllUsers() Query[model.User] {
	return Query[model.User]{
		Match: func(model.User) bool { return true },
		Order: "created_at asc",
		Less:  func(a, b model.User) bool { return a.CreatedAt.Before(b.CreatedAt) },
	}
}

// AllAdmins selects every admin, oldest first.
func AllAdmins() Query[model.Admin] {
	return Query[model.Admin]{
		Match: func(model.Admin) bool { return true },
		Order: "created_at asc",
		Less:  func(a, b model.Admin) bool { return a.CreatedAt.Before(b.CreatedAt) },
	}
}

// SessionByTokenHash selects the session recorded for a bearer token.
func SessionByTokenHash(hash string) Query[model.Session] {
	return Query[model.Session]{
		Scope: ScopeWhere("token_hash = ?", hash),
		Match: func(s model.Session) bool { return s.TokenHash == hash },
	}
}

// SessionsOf selects every session of a principal.
func SessionsOf(subjectID string) Query[model.Session] {
	return Query[model.Session]{
		Scope: ScopeWhere("subject_id = ?", subjectID),
		Match: func(s model.Session) bool { return s.SubjectID == subjectID },
	}
}

// ExpiredSessions selects sessions whose expiry is at or before now.
func ExpiredSessions(now time.Time) Query[model.Session] {
	return Query[model.Session]{
		Scope: ScopeWhere("expires_at <= ?", now),
		Match: func(s model.Session) bool { return s.Expired(now) },
	}
}
