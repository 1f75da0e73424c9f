package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthority struct {
	principal *Principal
	evaluator *Evaluator
	touched   int
}

func (s *stubAuthority) Current() *Principal   { return s.principal }
func (s *stubAuthority) Evaluator() *Evaluator { return s.evaluator }
func (s *stubAuthority) Touch()                { s.touched++ }

type stubSource struct {
	authority *stubAuthority
}

func (s *stubSource) AuthorityFor(ctx context.Context) (Authority, bool) {
	if s.authority == nil {
		return nil, false
	}
	return s.authority, true
}

func guardRequest(t *testing.T, mw Middleware, g Guard) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw.Require(g)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/protected", nil))
	return res
}

func problemType(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body.Type
}

func TestGuardRedirectsAnonymousToLogin(t *testing.T) {
	mw := Middleware{Source: &stubSource{}}
	res := guardRequest(t, mw, Guard{Resource: "users", Action: "view"})

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, ProblemLoginRequired, problemType(t, res))
}

func TestGuardAllowsGrantedPermission(t *testing.T) {
	auth := &stubAuthority{principal: tellerPrincipal(), evaluator: newEvaluator()}
	mw := Middleware{Source: &stubSource{authority: auth}}

	res := guardRequest(t, mw, Guard{Resource: "transactions", Action: "create"})

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, auth.touched, "every guarded check resets the idle timer")
}

func TestGuardDeniesMissingPermission(t *testing.T) {
	auth := &stubAuthority{principal: tellerPrincipal(), evaluator: newEvaluator()}
	mw := Middleware{Source: &stubSource{authority: auth}}

	res := guardRequest(t, mw, Guard{Resource: "transactions", Action: "approve"})

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, ProblemAccessDenied, problemType(t, res))
	assert.Contains(t, res.Body.String(), "transactions")
	assert.Contains(t, res.Body.String(), "approve")
}

func TestGuardInactiveAccount(t *testing.T) {
	p := tellerPrincipal()
	p.IsActive = false
	auth := &stubAuthority{principal: p, evaluator: newEvaluator()}
	mw := Middleware{Source: &stubSource{authority: auth}}

	res := guardRequest(t, mw, Guard{Resource: "transactions", Action: "create"})

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, ProblemInactive, problemType(t, res))
}

func TestGuardPasswordResetRedirect(t *testing.T) {
	p := tellerPrincipal()
	p.NeedsPasswordReset = true
	auth := &stubAuthority{principal: p, evaluator: newEvaluator()}
	mw := Middleware{Source: &stubSource{authority: auth}}

	// Any ordinary route redirects to the reset flow regardless of role.
	res := guardRequest(t, mw, Guard{Resource: "transactions", Action: "create"})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, ProblemPasswordReset, problemType(t, res))

	// The password-change route itself stays reachable.
	res = guardRequest(t, mw, Guard{AllowDuringReset: true})
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestGuardRequireAdmin(t *testing.T) {
	auth := &stubAuthority{principal: tellerPrincipal(), evaluator: newEvaluator()}
	mw := Middleware{Source: &stubSource{authority: auth}}
	res := guardRequest(t, mw, Guard{RequireAdmin: true})
	assert.Equal(t, http.StatusForbidden, res.Code)

	admin := &Principal{ID: 1, IsActive: true, Roles: []Role{{ID: 1, Name: "ADMIN"}}}
	auth = &stubAuthority{principal: admin, evaluator: NewEvaluator(NewDecisionCache(time.Minute), nil)}
	mw = Middleware{Source: &stubSource{authority: auth}}
	res = guardRequest(t, mw, Guard{RequireAdmin: true})
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestGuardMenuAndComponentGatesCompose(t *testing.T) {
	p := tellerPrincipal()
	p.MenuAccess = []string{"transactions"}
	p.SubMenuAccess = map[string][]string{"transactions": {"deposits"}}
	p.ComponentAccess = []string{"deposit-form"}
	auth := &stubAuthority{principal: p, evaluator: newEvaluator()}
	mw := Middleware{Source: &stubSource{authority: auth}}

	// Permission alone is not enough: the menu gate must also pass.
	res := guardRequest(t, mw, Guard{Resource: "transactions", Action: "create", MenuID: "settings"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = guardRequest(t, mw, Guard{
		Resource:    "transactions",
		Action:      "create",
		MenuID:      "transactions",
		SubMenuID:   "deposits",
		ComponentID: "deposit-form",
	})
	assert.Equal(t, http.StatusOK, res.Code)
}
