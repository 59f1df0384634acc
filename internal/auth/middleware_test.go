package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dgc-transports/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issue(t *testing.T, v *HMACVerifier, p Principal, ttl time.Duration) string {
	t.Helper()
	token, err := v.Sign(p, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))})
	require.NoError(t, err)
	return token
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := FromContext(r.Context())
		w.Write([]byte(p.UserID + "/" + string(p.Role)))
	})
}

func TestMiddleware(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	handler := Middleware(v, logger.Discard())(echoPrincipal())

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid token", "Bearer " + issue(t, v, Principal{UserID: "u-1", Role: RoleStaff}, time.Hour), http.StatusOK, "u-1/staff"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"expired token", "Bearer " + issue(t, v, Principal{UserID: "u-1"}, -time.Minute), http.StatusUnauthorized, ""},
		{"foreign signature", "Bearer " + issue(t, NewHMACVerifier("other"), Principal{UserID: "u-1"}, time.Hour), http.StatusUnauthorized, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestUnknownRoleDefaultsToCustomer(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	p, err := v.Verify(context.Background(), issue(t, v, Principal{UserID: "u-9", Role: "pilot"}, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, p.Role)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleStaff)(echoPrincipal())

	serve := func(p *Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/api/checkin", nil)
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(&Principal{UserID: "s", Role: RoleStaff}))
	assert.Equal(t, http.StatusOK, serve(&Principal{UserID: "a", Role: RoleAdmin}))
	assert.Equal(t, http.StatusForbidden, serve(&Principal{UserID: "c", Role: RoleCustomer}))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))
}

func TestPickRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, pickRole(knownRoles([]string{"offline_access", "staff", "ADMIN"})))
	assert.Equal(t, RoleInvestor, pickRole(knownRoles([]string{"investor", "customer"})))
	assert.Equal(t, RoleCustomer, pickRole(knownRoles(nil)))
	assert.Equal(t, []Role{RoleStaff, RoleInvestor}, knownRoles([]string{"investor", "offline_access", "Staff"}))
}

func TestRequireRoleMatchesAnyGrantedRole(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	token := issue(t, v, Principal{UserID: "u-5", Role: RoleStaff, Roles: []Role{RoleStaff, RoleInvestor}}, time.Hour)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, p.Role)
	assert.True(t, p.HasRole(RoleInvestor))
	assert.False(t, p.HasRole(RoleAdmin))

	investorOnly := Middleware(v, logger.Discard())(RequireRole(RoleInvestor)(echoPrincipal()))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/investor", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	investorOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-5/staff", rec.Body.String())

	customer := Principal{UserID: "c", Role: RoleCustomer, Roles: []Role{RoleCustomer}}
	assert.False(t, customer.HasRole(RoleInvestor))
}

func TestPrincipalAccess(t *testing.T) {
	owner := Principal{UserID: "u-1", Role: RoleCustomer}
	assert.True(t, owner.CanAccess("u-1"))
	assert.False(t, owner.CanAccess("u-2"))
	assert.True(t, Principal{UserID: "s", Role: RoleStaff}.CanAccess("u-2"))
	assert.False(t, Principal{}.CanAccess(""))
}
