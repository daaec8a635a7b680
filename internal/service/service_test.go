package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/jsonstore"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/queue"
	"github.com/dharsanguruparan/esubmit/internal/storage"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

var (
	applicant  = &auth.Principal{ID: "user-1", Role: model.RoleUser}
	otherUser  = &auth.Principal{ID: "user-2", Role: model.RoleUser}
	reviewer   = &auth.Principal{ID: "admin-1", Role: model.RoleAdmin}
	superAdmin = &auth.Principal{ID: "super-1", Role: model.RoleSuperAdmin}
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []queue.StatusPayload
}

func (n *recordingNotifier) SubmissionStatusChanged(_ context.Context, p queue.StatusPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, p)
	return nil
}

func (n *recordingNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, p := range n.sent {
		out = append(out, p.Status)
	}
	return out
}

type testEnv struct {
	stores   *store.Stores
	sessions *auth.Manager
	forms    *Forms
	files    *Files
	subs     *Submissions
	payments *Payments
	accounts *Accounts
	notes    *recordingNotifier
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logging.Discard()
	js, err := jsonstore.Open(t.TempDir())
	require.NoError(t, err)
	stores := store.New(nil, js, log)
	blobs, err := storage.New(model.StorageLocal, t.TempDir())
	require.NoError(t, err)

	env := &testEnv{stores: stores, notes: &recordingNotifier{}}
	env.sessions = auth.NewManager("test-secret", time.Hour, stores.Sessions, log)
	env.forms = NewForms(stores, log)
	env.files = NewFiles(stores, blobs, FileLimits{
		MaxSize:           1024,
		AllowedExtensions: []string{".pdf", ".png", "txt"},
	}, log)
	env.subs = NewSubmissions(stores, env.forms, env.files, env.notes, log)
	env.payments = NewPayments(stores, env.subs, log)
	env.accounts = NewAccounts(stores, env.sessions, AccountOptions{
		BcryptCost:    bcrypt.MinCost,
		AllowRegister: true,
	}, log)
	return env
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	created, err := e.forms.SeedSample(context.Background())
	require.NoError(t, err)
	require.True(t, created)
}

// completeApplication fills every required field of the sample form. The
// checklist marks each required document uploaded, which exempts the
// supporting documents upload.
func completeApplication() model.Data {
	uploaded := func(fileID string) map[string]any {
		return map[string]any{"uploaded": true, "fileId": fileID, "fileName": fileID + ".pdf"}
	}
	return model.Data{
		"step-1-general-info": map[string]any{
			"partyResponsible":   "labuan-trust-company",
			"officerName":        "Jane Tan",
			"officerCompany":     "Harbour Trust Ltd",
			"officerDesignation": "Director",
			"officerContact":     "+60 12345678",
			"officerEmail":       "jane@example.com",
			"consentDisclosure":  "yes",
		},
		"step-2-applicant-profile": map[string]any{
			"applicantName":  "Harbour Management Ltd",
			"licenseType":    []any{"conventional"},
			"processingType": "normal",
			"paidUpCapital":  50000.0,
			"directors":      []any{map[string]any{"directorName": "A. Lim", "directorNationality": "MY"}},
		},
		"step-3-business-plan": map[string]any{
			"businessOverview": "Company management services for Labuan entities.",
		},
		"step-4-documents": map[string]any{
			"documentChecklist": map[string]any{
				"corporate-shareholding-structure": uploaded("doc-structure"),
				"certificate-incorporation":        uploaded("doc-incorporation"),
				"board-resolution":                 uploaded("doc-resolution"),
				"memorandum-articles":              uploaded("doc-memorandum"),
				"audited-financial-statements":     uploaded("doc-financials"),
				"nric-passport":                    uploaded("doc-passport"),
				"kyc-policy":                       uploaded("doc-kyc"),
				"certificate-license":              map[string]any{"uploaded": false},
			},
		},
		"step-5-declaration": map[string]any{
			"declarationAccurate": true,
			"declarationConsent":  true,
			"signature":           "Jane Tan",
			"signatureDate":       "2024-01-01",
		},
	}
}

func ptr[T any](v T) *T { return &v }
