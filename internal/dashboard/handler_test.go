package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgyard/backend/internal/audit"
	"github.com/dgyard/backend/internal/models"
)

type stubTrail struct {
	entries []*audit.Entry
	jobID   uuid.UUID
}

func (s *stubTrail) ListByJob(_ context.Context, jobID uuid.UUID) ([]*audit.Entry, error) {
	s.jobID = jobID
	return s.entries, nil
}

func TestJobAudit_ReturnsTrailForJob(t *testing.T) {
	jobID := uuid.New()
	trail := &stubTrail{entries: []*audit.Entry{
		{ID: uuid.New(), JobID: &jobID, UserID: uuid.New(), Role: models.RoleDealer,
			Action: "job.approve", Description: "payment split executed", AmountPaise: 1_000_000, CreatedAt: time.Now()},
		{ID: uuid.New(), JobID: &jobID, UserID: uuid.New(), Role: models.RoleTechnician,
			Action: "withdrawal.request", Description: "payout requested", AmountPaise: 500_000, CreatedAt: time.Now()},
	}}
	h := NewHandler(nil, nil, nil, nil, trail, nil)

	mux := http.NewServeMux()
	mux.Handle("GET /v1/jobs/{id}/audit", http.HandlerFunc(h.JobAudit))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID.String()+"/audit", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, jobID, trail.jobID)

	var got []*audit.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "job.approve", got[0].Action)
	assert.Equal(t, "withdrawal.request", got[1].Action)
}

func TestJobAudit_RejectsBadID(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, &stubTrail{}, nil)

	mux := http.NewServeMux()
	mux.Handle("GET /v1/jobs/{id}/audit", http.HandlerFunc(h.JobAudit))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/not-a-uuid/audit", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
