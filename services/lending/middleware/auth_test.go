package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "lending-test-secret"

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newTestAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:     true,
		HMACSecret:  testSecret,
		Issuer:      "yei",
		Audience:    "lending",
		PublicPaths: []string{"/healthz"},
	}, nil)
}

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"subject": p.Subject.Hex(), "admin": p.Admin})
	})
}

func serve(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestAuthenticatorAcceptsIssuedToken(t *testing.T) {
	auth := newTestAuth()
	token, err := IssueToken(testSecret, TokenRequest{Subject: alice, Issuer: "yei", Audience: "lending", TTL: time.Minute})
	require.NoError(t, err)

	res := serve(t, auth.Middleware()(principalEcho()), "/v1/deposit", token)
	require.Equal(t, http.StatusOK, res.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, alice.Hex(), body["subject"])
	require.Equal(t, false, body["admin"])
}

func TestAuthenticatorRejections(t *testing.T) {
	auth := newTestAuth()
	valid := TokenRequest{Subject: alice, Issuer: "yei", Audience: "lending", TTL: time.Minute}
	sign := func(secret string, mutate func(*TokenRequest)) string {
		req := valid
		if mutate != nil {
			mutate(&req)
		}
		token, err := IssueToken(secret, req)
		require.NoError(t, err)
		return token
	}
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": alice.Hex(), "iss": "yei", "aud": "lending",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "yei", "aud": "lending", "exp": time.Now().Add(time.Hour).Unix(),
	})
	noSubjectToken, err := noSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "wrong secret", token: sign("other-secret", nil)},
		{name: "wrong issuer", token: sign(testSecret, func(r *TokenRequest) { r.Issuer = "evil" })},
		{name: "wrong audience", token: sign(testSecret, func(r *TokenRequest) { r.Audience = "swap" })},
		{name: "expired", token: expiredToken},
		{name: "no subject", token: noSubjectToken},
		{name: "garbage", token: "not-a-jwt"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := serve(t, auth.Middleware()(principalEcho()), "/v1/deposit", tc.token)
			require.Equal(t, http.StatusUnauthorized, res.Code)
			require.Contains(t, res.Body.String(), `"code":"unauthenticated"`)
		})
	}
}

func TestAuthenticatorScopes(t *testing.T) {
	auth := newTestAuth()
	user, err := IssueToken(testSecret, TokenRequest{Subject: alice, Issuer: "yei", Audience: "lending"})
	require.NoError(t, err)
	admin, err := IssueToken(testSecret, TokenRequest{Subject: alice, Issuer: "yei", Audience: "lending", Scopes: []string{"read", DefaultAdminScope}})
	require.NoError(t, err)

	guarded := auth.Middleware(DefaultAdminScope)(principalEcho())
	require.Equal(t, http.StatusForbidden, serve(t, guarded, "/v1/tokens/YEI/mint", user).Code)

	res := serve(t, guarded, "/v1/tokens/YEI/mint", admin)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"admin":true`)
}

func TestAuthenticatorPublicPathsAndDisabled(t *testing.T) {
	res := serve(t, newTestAuth().Middleware()(principalEcho()), "/healthz", "")
	require.Equal(t, http.StatusNoContent, res.Code)

	disabled := NewAuthenticator(AuthConfig{}, nil)
	require.False(t, disabled.Enabled())
	res = serve(t, disabled.Middleware(DefaultAdminScope)(principalEcho()), "/v1/deposit", "")
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestPrincipalCanActFor(t *testing.T) {
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	p := Principal{Subject: alice}
	require.True(t, p.CanActFor(alice))
	require.False(t, p.CanActFor(bob))
	p.Admin = true
	require.True(t, p.CanActFor(bob))
}

func TestExtractScopesForms(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, extractScopes(jwt.MapClaims{"scope": " a  b "}, "scope"))
	require.Equal(t, []string{"x"}, extractScopes(jwt.MapClaims{"scp": []interface{}{"x", 3}}, "scp"))
	require.Nil(t, extractScopes(jwt.MapClaims{}, "scope"))
}
