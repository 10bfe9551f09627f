package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_IssueAndVerify(t *testing.T) {
	v := NewVerifier("test-secret")
	userID := uuid.NewString()

	token, err := v.Issue(userID, RoleVendor, "vendor-1", time.Minute)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, RoleVendor, p.Role)
	assert.Equal(t, "vendor-1", p.VendorID)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("test-secret")

	expired, err := v.Issue(uuid.NewString(), RoleCustomer, "", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewVerifier("other").Issue(uuid.NewString(), RoleCustomer, "", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	notUUID, err := v.Issue("alice", RoleCustomer, "", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(notUUID)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("test-secret")
	userID := uuid.NewString()
	token, _ := v.Issue(userID, "", "", time.Minute)

	var seen *Principal
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, userID, seen.UserID)
	assert.Equal(t, RoleCustomer, seen.Role)
}
