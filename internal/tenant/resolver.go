package tenant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go-pos-tenancy/internal/models"
)

// Request inputs the resolver reads.
const (
	HeaderSlug     = "X-Tenant-Slug"
	HeaderID       = "X-Tenant-Id"
	QueryTenantID  = "tenant_id"
	SessionSlugKey = "admin_tenant_slug"
)

// Source names the input that produced a resolution.
type Source string

const (
	SourceNone       Source = "none"
	SourceSlugHeader Source = "slug_header"
	SourceIDHeader   Source = "id_header"
	SourceQuery      Source = "query"
	SourceSubdomain  Source = "subdomain"
	SourceDomain     Source = "domain"
	SourceSession    Source = "session"
)

// Session is the minimal view of a request session.
type Session interface {
	Get(key interface{}) interface{}
}

// Request is everything the resolver may look at for one inbound request.
type Request struct {
	Header http.Header
	Host   string
	Query  url.Values
	// AllowQuery enables the tenant_id query parameter for flows that need it.
	AllowQuery bool
	// Session is nil when the request has no session mechanism.
	Session Session
}

// Lookup is the read side of the registry.
type Lookup interface {
	FindBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	FindByID(ctx context.Context, id uint) (*models.Tenant, error)
	FindBySubdomain(ctx context.Context, sub string) (*models.Tenant, error)
	FindByDomain(ctx context.Context, host string) (*models.Tenant, error)
}

// Resolver maps a request to a tenant. It never writes to the registry.
type Resolver struct {
	lookup     Lookup
	baseDomain string
	reserved   map[string]struct{}
}

// NewResolver creates a resolver for the given base application domain
func NewResolver(lookup Lookup, baseDomain string, reserved []string) *Resolver {
	r := &Resolver{
		lookup:     lookup,
		baseDomain: strings.ToLower(strings.TrimPrefix(baseDomain, ".")),
		reserved:   make(map[string]struct{}, len(reserved)),
	}
	for _, w := range reserved {
		r.reserved[strings.ToLower(w)] = struct{}{}
	}
	return r
}

// Resolve returns the first tenant matched by, in order: slug header, id header,
// query parameter, subdomain, custom domain, session. A nil tenant with a nil
// error means nothing matched. Errors are only returned for lookup failures.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*models.Tenant, Source, error) {
	if slug := strings.TrimSpace(req.Header.Get(HeaderSlug)); slug != "" {
		t, err := r.active(r.lookup.FindBySlug(ctx, slug))
		if err != nil || t != nil {
			return t, SourceSlugHeader, err
		}
	}

	if id, ok := parseID(req.Header.Get(HeaderID)); ok {
		t, err := r.active(r.lookup.FindByID(ctx, id))
		if err != nil || t != nil {
			return t, SourceIDHeader, err
		}
	}

	if req.AllowQuery && req.Query != nil {
		if id, ok := parseID(req.Query.Get(QueryTenantID)); ok {
			t, err := r.active(r.lookup.FindByID(ctx, id))
			if err != nil || t != nil {
				return t, SourceQuery, err
			}
		}
	}

	host := normalizeHost(req.Host)
	if sub, ok := r.subdomain(host); ok {
		t, err := found(r.lookup.FindBySubdomain(ctx, sub))
		if err != nil || t != nil {
			return t, SourceSubdomain, err
		}
	}

	if host != "" && !r.underBaseDomain(host) {
		t, err := found(r.lookup.FindByDomain(ctx, host))
		if err != nil || t != nil {
			return t, SourceDomain, err
		}
	}

	if req.Session != nil {
		if slug, ok := req.Session.Get(SessionSlugKey).(string); ok && slug != "" {
			t, err := found(r.lookup.FindBySlug(ctx, slug))
			if err != nil || t != nil {
				return t, SourceSession, err
			}
		}
	}

	return nil, SourceNone, nil
}

// subdomain extracts a single-label subdomain of the base domain, skipping reserved words.
func (r *Resolver) subdomain(host string) (string, bool) {
	if host == "" || r.baseDomain == "" {
		return "", false
	}
	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	if _, reserved := r.reserved[sub]; reserved {
		return "", false
	}
	return sub, true
}

func (r *Resolver) underBaseDomain(host string) bool {
	return r.baseDomain != "" && (host == r.baseDomain || strings.HasSuffix(host, "."+r.baseDomain))
}

// active keeps only tenants with status active; header and query lookups require it.
func (r *Resolver) active(t *models.Tenant, err error) (*models.Tenant, error) {
	t, err = found(t, err)
	if t != nil && t.Status != models.TenantActive {
		return nil, nil
	}
	return t, err
}

func found(t *models.Tenant, err error) (*models.Tenant, error) {
	if errors.Is(err, ErrTenantNotFound) {
		return nil, nil
	}
	return t, err
}

func parseID(raw string) (uint, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
