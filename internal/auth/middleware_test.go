package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/hisab-app/backend-hisab/internal/auth"
	"github.com/hisab-app/backend-hisab/internal/common"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, mutate func(b *jwt.Builder)) string {
	t.Helper()
	now := time.Now()
	builder := jwt.NewBuilder().
		Subject("user-1").
		Issuer("hisab-id").
		Audience([]string{"hisab-api"}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour))
	if mutate != nil {
		mutate(builder)
	}
	tok, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, testSecret))
	require.NoError(t, err)
	return string(signed)
}

func newVerifier() *auth.Verifier {
	return &auth.Verifier{
		Secret:    testSecret,
		Issuer:    "hisab-id",
		Audience:  "hisab-api",
		ClockSkew: time.Minute,
	}
}

func TestParseTokenValid(t *testing.T) {
	raw := signToken(t, func(b *jwt.Builder) {
		b.Claim("permissions", map[string]any{
			"finance.documents": map[string]any{"can_view": true, "can_create": true},
		})
	})

	claims, err := newVerifier().ParseToken(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.True(t, claims.Permissions.Allows("finance.documents", auth.ActionView))
	require.True(t, claims.Permissions.Allows("finance.documents", auth.ActionCreate))
	require.False(t, claims.Permissions.Allows("finance.documents", auth.ActionDelete))
	require.False(t, claims.Permissions.Allows("users.list", auth.ActionView))
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	raw := signToken(t, func(b *jwt.Builder) { b.Issuer("someone-else") })

	_, err := newVerifier().ParseToken(raw)
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	raw := signToken(t, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-2 * time.Hour))
	})

	_, err := newVerifier().ParseToken(raw)
	require.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := newVerifier().ParseToken("not.a.token")
	require.Error(t, err)

	_, err = newVerifier().ParseToken("")
	require.Error(t, err)
}

func TestViewAnyImpliesView(t *testing.T) {
	perms := auth.Permissions{
		"products.index": {CanViewAny: true},
	}
	require.True(t, perms.Allows("products.index", auth.ActionView))
	require.True(t, perms.Allows("products.index", auth.ActionViewAny))
	require.False(t, perms.Allows("products.index", auth.ActionUpdate))
}

func TestRequireAuthAndPermission(t *testing.T) {
	mw := auth.Middleware{Verifier: newVerifier()}
	var gotUser string
	handler := mw.RequireAuth(
		auth.RequirePermission("finance.documents", auth.ActionCreate)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = common.UserID(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})))

	// No token at all.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// Valid token, missing permission.
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, nil))
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// Valid token with the permission.
	raw := signToken(t, func(b *jwt.Builder) {
		b.Claim("permissions", map[string]any{
			"finance.documents": map[string]any{"can_create": true},
		})
	})
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "user-1", gotUser)
}

func TestAuthenticateIsOptional(t *testing.T) {
	mw := auth.Middleware{Verifier: newVerifier()}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code, "anonymous requests pass through")

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, nil))
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
