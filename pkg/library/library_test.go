package library

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type perms map[string]bool

func (p perms) Authorize(want []string) bool {
	for _, w := range want {
		if !p[w] {
			return false
		}
	}
	return true
}

func TestEntryValidate_ExactlyOneSource(t *testing.T) {
	e := Entry{Path: "/a", Type: TypeData, Source: Source{Data: []byte("x")}}
	require.NoError(t, e.Validate())

	e.Source.File = "/tmp/x"
	require.ErrorIs(t, e.Validate(), ErrInvalid, "two sources must be rejected")

	e = Entry{Path: "/a", Type: TypeFile, Source: Source{Data: []byte("x")}}
	require.ErrorIs(t, e.Validate(), ErrInvalid, "source must match type")

	e = Entry{Path: "/a", Type: TypeLink, Source: Source{Link: "a"}}
	require.ErrorIs(t, e.Validate(), ErrInvalid, "self link")

	e = Entry{Path: "/f", Type: TypeFunction, Source: Source{Function: &FunctionSpec{
		Name: "sum",
		Args: []ArgSpec{{Name: "a", Type: "number"}, {Name: "a", Type: "number"}},
	}}}
	require.ErrorIs(t, e.Validate(), ErrInvalid, "duplicate argument")
}

func TestAllowsMethod(t *testing.T) {
	assert.True(t, TypeData.AllowsMethod(http.MethodGet))
	assert.False(t, TypeFile.AllowsMethod(http.MethodPost))
	assert.True(t, TypeFunction.AllowsMethod(http.MethodPost))
	assert.False(t, TypeFunction.AllowsMethod(http.MethodDelete))
	assert.True(t, TypeExtension.AllowsMethod("PATCH"))
}

func TestAuthPolicyEvaluate_Order(t *testing.T) {
	p := AuthPolicy{Secure: true, Consent: true, SignIn: true, Permissions: []string{"P"}}

	assert.Equal(t, StatusMovedPermanently, p.Evaluate(Gate{}))
	assert.Equal(t, StatusTemporaryRedirect, p.Evaluate(Gate{Secure: true, Session: perms{}}))
	assert.Equal(t, StatusTemporaryRedirect, p.Evaluate(Gate{Secure: true, Session: perms{PermConsent: true}}))
	assert.Equal(t, StatusForbidden, p.Evaluate(Gate{Secure: true, Session: perms{PermConsent: true, PermSignedIn: true}}))
	assert.Equal(t, StatusOK, p.Evaluate(Gate{Secure: true, Session: perms{PermConsent: true, PermSignedIn: true, "P": true}}))

	open := AuthPolicy{Mode: AuthModeOpen, Secure: true}
	assert.Equal(t, StatusOK, open.Evaluate(Gate{RequireSecure: true}), "open mode skips the scheme redirect")
}

func TestAuthPolicyCheck_Reason(t *testing.T) {
	both := AuthPolicy{Consent: true, SignIn: true}
	st, reason := both.Check(Gate{Session: perms{}})
	assert.Equal(t, StatusTemporaryRedirect, st)
	assert.Equal(t, ReasonConsent, reason)
	_, reason = both.Check(Gate{Session: perms{PermConsent: true}})
	assert.Equal(t, ReasonSignIn, reason)

	signInOnly := AuthPolicy{SignIn: true}
	st, reason = signInOnly.Check(Gate{Session: perms{}})
	assert.Equal(t, StatusTemporaryRedirect, st)
	assert.Equal(t, ReasonSignIn, reason, "a sign-in gate never sends the session to consent")

	st, reason = AuthPolicy{Permissions: []string{"P"}}.Check(Gate{Session: perms{}})
	assert.Equal(t, StatusForbidden, st)
	assert.Empty(t, reason)
}

func TestAuthPolicyEvaluate_Predicate(t *testing.T) {
	RegisterPredicate("has-key", func(h http.Header) bool { return h.Get("X-Key") == "k" })

	p := AuthPolicy{Predicate: "has-key"}
	h := http.Header{}
	assert.Equal(t, StatusForbidden, p.Evaluate(Gate{Header: h}))
	h.Set("X-Key", "k")
	assert.Equal(t, StatusOK, p.Evaluate(Gate{Header: h}))

	missing := AuthPolicy{Predicate: "nope"}
	assert.Equal(t, StatusForbidden, missing.Evaluate(Gate{Header: h}))
}

func TestReplyJSON_SentinelIsBareInteger(t *testing.T) {
	b, err := json.Marshal(Fail(StatusNotFound))
	require.NoError(t, err)
	assert.Equal(t, "404", string(b))

	var r Reply
	require.NoError(t, json.Unmarshal(b, &r))
	assert.Equal(t, StatusNotFound, r.Status)
	assert.False(t, r.OK())

	ok := Reply{Status: StatusOK, Type: TypeData, ContentType: "text/plain", Content: []byte("pong")}
	b, err = json.Marshal(ok)
	require.NoError(t, err)
	require.Equal(t, byte('{'), b[0])

	var back Reply
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ok, back)
}

func TestReplyJSON_RedirectKeepsReason(t *testing.T) {
	b, err := json.Marshal(Redirect(ReasonSignIn))
	require.NoError(t, err)
	require.Equal(t, byte('{'), b[0])

	var back Reply
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, StatusTemporaryRedirect, back.Status)
	assert.Equal(t, ReasonSignIn, back.Reason)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/a/b", NormalizePath("a//b/"))
	assert.Equal(t, "/", NormalizePath(""))
	assert.Equal(t, "/x", NormalizePath(" /y/../x "))
}
