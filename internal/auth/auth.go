// Package auth decides which ingest operations a caller may perform. The
// identity comes from headers set by the fronting proxy, or from the test
// identity when authentication is disabled by configuration.
package auth

import (
	"net/http"
	"slices"
	"strings"

	"stacingest/domain/ingest"
	apperrors "stacingest/internal/errors"
)

// Scopes checked by the API
const (
	ScopeWrite      = "ingest:write"
	ScopeCollection = "ingest:collection"
)

// Headers the fronting proxy sets after authenticating a user
const (
	HeaderSubject = "X-Auth-Subject"
	HeaderTenants = "X-Auth-Tenants"
	HeaderScopes  = "X-Auth-Scopes"
)

// TestSubject names the identity used when authentication is disabled
const TestSubject = "test-user"

// Identity is an authenticated caller
type Identity struct {
	Subject string   `json:"subject"`
	Tenants []string `json:"tenants"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the identity carries scope
func (i Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// HasTenant reports whether the identity belongs to tenant
func (i Identity) HasTenant(tenant string) bool {
	return slices.Contains(i.Tenants, tenant)
}

// Config is injected at startup; business code never reads the environment
type Config struct {
	Disabled    bool
	TestTenants []string
	TestScopes  []string
}

// Authorizer resolves identities and checks permissions
type Authorizer struct {
	cfg Config
}

// New creates an authorizer. With auth disabled and no test scopes given,
// the test identity gets every scope.
func New(cfg Config) *Authorizer {
	if cfg.Disabled && len(cfg.TestScopes) == 0 {
		cfg.TestScopes = []string{ScopeWrite, ScopeCollection}
	}
	return &Authorizer{cfg: cfg}
}

// Disabled reports whether requests run as the test identity
func (a *Authorizer) Disabled() bool {
	return a.cfg.Disabled
}

// Identify returns the caller behind a request
func (a *Authorizer) Identify(h http.Header) (Identity, error) {
	if a.cfg.Disabled {
		return Identity{
			Subject: TestSubject,
			Tenants: slices.Clone(a.cfg.TestTenants),
			Scopes:  slices.Clone(a.cfg.TestScopes),
		}, nil
	}

	subject := strings.TrimSpace(h.Get(HeaderSubject))
	if subject == "" {
		return Identity{}, apperrors.Unauthorized("authentication required")
	}
	return Identity{
		Subject: subject,
		Tenants: splitList(h.Get(HeaderTenants)),
		Scopes:  splitList(h.Get(HeaderScopes)),
	}, nil
}

// Require fails unless the identity carries every scope
func (a *Authorizer) Require(id Identity, scopes ...string) error {
	for _, scope := range scopes {
		if !id.HasScope(scope) {
			return apperrors.Forbidden("missing scope " + scope)
		}
	}
	return nil
}

// CanCreate checks that the identity may author records of typ
func (a *Authorizer) CanCreate(id Identity, typ ingest.IngestionType) error {
	if err := a.Require(id, ScopeWrite); err != nil {
		return err
	}
	if typ == ingest.Collection {
		return a.Require(id, ScopeCollection)
	}
	return nil
}

// CheckTenants fails when doc names a tenant the identity does not belong to
func (a *Authorizer) CheckTenants(id Identity, doc ingest.Document) error {
	for _, tenant := range Tenants(doc) {
		if !id.HasTenant(tenant) {
			return apperrors.Forbidden("not a member of tenant " + tenant)
		}
	}
	return nil
}

// Tenants returns the tenant names a document is restricted to. The field
// may hold a single string or a list.
func Tenants(doc ingest.Document) []string {
	switch v := doc[ingest.FieldTenant].(type) {
	case string:
		if t := strings.TrimSpace(v); t != "" {
			return []string{t}
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}
