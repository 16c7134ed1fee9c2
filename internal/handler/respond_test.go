package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yourorg/reviewflow/internal/domain"
)

func TestWriteDomainErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrTenantScopeRequired, http.StatusForbidden},
		{domain.ErrTenantIDRequired, http.StatusBadRequest},
		{domain.ErrDuplicate, http.StatusConflict},
		{domain.ErrReviewLimitReached, http.StatusForbidden},
		{domain.ErrInvitationInvalid, http.StatusGone},
		{errors.New("sql: connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, nil, tc.err)
		if rec.Code != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var env envelope
		if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
			t.Fatalf("%v: invalid body: %v", tc.err, err)
		}
		if env.Success {
			t.Errorf("%v: success should be false", tc.err)
		}
	}
}

func TestWriteDomainErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, nil, errors.New("pq: password authentication failed"))
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}

func TestRequestTenantID(t *testing.T) {
	scope := domain.Scope{UserID: "u1", TenantID: "tenant-own", Role: domain.RoleTenantAdmin}

	r := httptest.NewRequest(http.MethodGet, "/api/reviews", nil)
	if got := requestTenantID(r, scope); got != "tenant-own" {
		t.Errorf("default tenant = %q, want scope tenant", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/reviews?tenant_id=tenant-other", nil)
	if got := requestTenantID(r, scope); got != "tenant-other" {
		t.Errorf("explicit tenant = %q, want tenant-other", got)
	}
}

func TestParseReviewFilter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/api/reviews?min_rating=2&max_rating=4&limit=10&offset=20&feedback_only=true&since=2026-01-01T00:00:00Z", nil)
	filter, err := parseReviewFilter(r)
	if err != nil {
		t.Fatalf("parseReviewFilter failed: %v", err)
	}
	if filter.MinRating != 2 || filter.MaxRating != 4 {
		t.Errorf("rating bounds = %d..%d", filter.MinRating, filter.MaxRating)
	}
	if filter.Limit != 10 || filter.Offset != 20 {
		t.Errorf("pagination = %d/%d", filter.Limit, filter.Offset)
	}
	if !filter.FeedbackOnly || filter.GoogleOnly {
		t.Errorf("flags = google:%v feedback:%v", filter.GoogleOnly, filter.FeedbackOnly)
	}
	if filter.Since.Year() != 2026 {
		t.Errorf("since = %v", filter.Since)
	}
}

func TestParseReviewFilterRejectsGarbage(t *testing.T) {
	for _, query := range []string{
		"min_rating=five",
		"limit=all",
		"since=yesterday",
		"until=soon",
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/reviews?"+query, nil)
		if _, err := parseReviewFilter(r); err == nil {
			t.Errorf("%s: expected error", query)
		}
	}
}
