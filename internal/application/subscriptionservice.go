package application

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/B3hnamR/OutlineManager/internal/config"
	"github.com/B3hnamR/OutlineManager/internal/domain/model"
	"github.com/B3hnamR/OutlineManager/internal/domain/port/driven"
)

// DeploymentSource supplies the current deployment settings. Satisfied by
// *config.DeploymentProvider.
type DeploymentSource interface {
	Deployment() (config.Deployment, error)
}

// ResolveOutcome is the collapsed result of a subscription lookup. Every
// internal failure cause maps onto one of these so the public path leaks
// nothing about local state.
type ResolveOutcome int

const (
	ResolveOK ResolveOutcome = iota
	ResolveInvalidLink
	ResolveSuspended
	ResolveExpired
	ResolveServerError
	ResolveKeyNotFound
)

// ResolveResult carries the outcome plus, on success, the connection string
// body and the sanitized filename hint for the Content-Disposition header.
type ResolveResult struct {
	Outcome  ResolveOutcome
	Body     string
	Filename string
}

// accessURLPattern captures userinfo, host, and port of an ss:// access URL
// with its query already stripped.
var accessURLPattern = regexp.MustCompile(`^ss://([^@]+)@([^:]+):(\d+)`)

// filenameStrip removes everything not safe inside a quoted filename
// parameter, defending against header injection via a user-supplied name.
var filenameStrip = regexp.MustCompile(`[^A-Za-z0-9_.\- ]`)

// SubscriptionService serves the public subscription path: it validates the
// token's status and expiry locally, fetches the live access URL from the
// Outline server, and rewrites it for the deployment's tunnel.
type SubscriptionService struct {
	keys    driven.KeyStore
	outline driven.OutlineClient
	deploy  DeploymentSource

	now func() time.Time
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(keys driven.KeyStore, outline driven.OutlineClient, deploy DeploymentSource) *SubscriptionService {
	return &SubscriptionService{
		keys:    keys,
		outline: outline,
		deploy:  deploy,
		now:     time.Now,
	}
}

// Resolve maps a subscription token to its current connection string. The
// error return is reserved for local store failures; every remote or state
// problem is expressed through the outcome.
func (s *SubscriptionService) Resolve(ctx context.Context, token string) (*ResolveResult, error) {
	key, err := s.keys.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return &ResolveResult{Outcome: ResolveInvalidLink}, nil
	}

	if key.Status == model.StatusSuspended {
		return &ResolveResult{Outcome: ResolveSuspended}, nil
	}

	// An active key past its expiry is refused here even before a sweep has
	// removed it. On-hold keys have no running clock yet and always pass.
	if key.Status != model.StatusOnHold && key.Expiry != nil && s.now().After(*key.Expiry) {
		return &ResolveResult{Outcome: ResolveExpired}, nil
	}

	remoteKeys, err := s.outline.ListKeys(ctx)
	if err != nil {
		return &ResolveResult{Outcome: ResolveServerError}, nil
	}

	var target *model.RemoteKey
	for i := range remoteKeys {
		if remoteKeys[i].ID == key.KeyID {
			target = &remoteKeys[i]
			break
		}
	}
	if target == nil {
		return &ResolveResult{Outcome: ResolveKeyNotFound}, nil
	}

	dep, err := s.deploy.Deployment()
	if err != nil {
		return &ResolveResult{Outcome: ResolveServerError}, nil
	}

	return &ResolveResult{
		Outcome:  ResolveOK,
		Body:     rewriteAccessURL(target.AccessURL, key.Name, dep),
		Filename: sanitizeFilename(key.Name, token),
	}, nil
}

// rewriteAccessURL points the served connection string at the deployment's
// tunnel: host replaced, port forced if configured, configured suffix
// appended, and the key name percent-encoded into the fragment. An access
// URL that does not look like ss://user@host:port passes through unchanged.
func rewriteAccessURL(accessURL, name string, dep config.Deployment) string {
	base := accessURL
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}

	m := accessURLPattern.FindStringSubmatch(base)
	if m == nil {
		return accessURL
	}

	port := m[3]
	if dep.ForcePort > 0 {
		port = strconv.Itoa(dep.ForcePort)
	}

	suffix := dep.CustomSuffix
	if i := strings.Index(suffix, "#"); i >= 0 {
		suffix = suffix[:i]
	}

	return fmt.Sprintf("ss://%s@%s:%s%s#%s", m[1], dep.TunnelAddress, port, suffix, url.PathEscape(name))
}

// sanitizeFilename strips the stored name down to header-safe characters,
// falling back to a token-derived name when nothing survives.
func sanitizeFilename(name, token string) string {
	safe := strings.TrimSpace(filenameStrip.ReplaceAllString(name, ""))
	if safe == "" {
		return "outline-" + token
	}
	return safe
}

// SubscriptionLink builds the public ssconf:// link for a token.
func SubscriptionLink(dep config.Deployment, token, name string) string {
	return fmt.Sprintf("ssconf://%s/getsub/%s#%s", dep.SubscriptionDomain, token, url.PathEscape(name))
}
