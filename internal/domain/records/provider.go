// Package records implements the session-scoped FHIR resource pipeline:
// Patient, Observation, and QuestionnaireResponse CRUD plus search, backed
// by the in-memory session store with best-effort write-through to the
// user's pod.
package records

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/auth"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/pod"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/session"
)

// Provider implements the generic CRUD and search contract for one resource
// type against the current request's session. Every resource crossing the
// provider boundary is a deep copy, inbound and outbound: callers may
// mutate what they pass in or get back without touching stored state.
type Provider struct {
	resourceType string
	sessions     *session.Store
	pod          *pod.Client
	logger       zerolog.Logger
}

func NewProvider(resourceType string, sessions *session.Store, podClient *pod.Client, logger zerolog.Logger) *Provider {
	return &Provider{
		resourceType: resourceType,
		sessions:     sessions,
		pod:          podClient,
		logger:       logger.With().Str("component", "provider").Str("type", resourceType).Logger(),
	}
}

// ResourceType returns the FHIR type this provider serves.
func (p *Provider) ResourceType() string { return p.resourceType }

func (p *Provider) requireSession(ctx context.Context) (*auth.TokenContext, *session.Session, error) {
	tc := auth.FromContext(ctx)
	if tc == nil {
		return nil, nil, fhir.ErrUnauthenticated
	}
	s := p.sessions.Get(tc.SessionKey())
	if s == nil {
		return nil, nil, fhir.ErrUnauthenticated
	}
	return tc, s, nil
}

// Read returns the resource, latest version when version is nil. A
// tombstoned id is gone; a missing id or missing explicit version is not
// found.
func (p *Provider) Read(ctx context.Context, id string, version *int64) (fhir.Resource, error) {
	_, s, err := p.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if s.IsDeleted(p.resourceType, id) {
		return nil, &fhir.GoneError{ResourceType: p.resourceType, ID: id}
	}
	res := s.Get(p.resourceType, id, version)
	if res == nil {
		return nil, &fhir.NotFoundError{ResourceType: p.resourceType, ID: id}
	}
	return res.Clone(), nil
}

// Create stores a new resource under a server-assigned id at version 1 and
// writes it through to the pod.
func (p *Provider) Create(ctx context.Context, res fhir.Resource) (fhir.Resource, error) {
	tc, s, err := p.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	id := strconv.FormatInt(s.NextID(p.resourceType), 10)
	stored := res.Clone()
	stored["resourceType"] = p.resourceType
	stored.SetID(id)
	stored.StampMeta(1, time.Now())

	s.Store(p.resourceType, id, 1, stored)
	p.persistToPod(ctx, tc, stored)

	p.logger.Info().Str("id", id).Str("session", s.Key()).Msg("created resource")
	return stored.Clone(), nil
}

// Update stores a new version of the resource: latest+1 when the id exists,
// version 1 otherwise (update-as-create, matching the source behaviour).
func (p *Provider) Update(ctx context.Context, id string, res fhir.Resource) (fhir.Resource, error) {
	tc, s, err := p.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	newVersion := s.LatestVersion(p.resourceType, id) + 1

	stored := res.Clone()
	stored["resourceType"] = p.resourceType
	stored.SetID(id)
	stored.StampMeta(newVersion, time.Now())

	s.Store(p.resourceType, id, newVersion, stored)
	p.persistToPod(ctx, tc, stored)

	p.logger.Info().Str("id", id).Int64("version", newVersion).Str("session", s.Key()).Msg("updated resource")
	return stored.Clone(), nil
}

// Delete tombstones the id and removes it from the pod. Deleting an id that
// never existed is not found; no tombstone is created for it.
func (p *Provider) Delete(ctx context.Context, id string) error {
	tc, s, err := p.requireSession(ctx)
	if err != nil {
		return err
	}
	if !s.Exists(p.resourceType, id) {
		return &fhir.NotFoundError{ResourceType: p.resourceType, ID: id}
	}

	s.Delete(p.resourceType, id)
	p.deleteFromPod(ctx, tc, id)

	p.logger.Info().Str("id", id).Str("session", s.Key()).Msg("deleted resource")
	return nil
}

// SearchAll returns the latest version of every live resource.
func (p *Provider) SearchAll(ctx context.Context) ([]fhir.Resource, error) {
	_, s, err := p.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	stored := s.GetAll(p.resourceType)
	out := make([]fhir.Resource, len(stored))
	for i, r := range stored {
		out[i] = r.Clone()
	}
	return out, nil
}

// SearchByID is read wrapped in search semantics: a tombstoned or absent id
// yields an empty result rather than an error.
func (p *Provider) SearchByID(ctx context.Context, id string) ([]fhir.Resource, error) {
	res, err := p.Read(ctx, id, nil)
	if err != nil {
		if fhir.IsNotFound(err) || fhir.IsGone(err) {
			return nil, nil
		}
		return nil, err
	}
	return []fhir.Resource{res}, nil
}

// StoreInSession places a hydrated resource directly into a session,
// bypassing the request context. Used by the hydration orchestrator for both
// pod and dev data loading.
func (p *Provider) StoreInSession(s *session.Session, res fhir.Resource) {
	id := res.ID()
	if id == "" {
		id = strconv.FormatInt(s.NextID(p.resourceType), 10)
	}
	version := res.Version()
	if version < 1 {
		version = 1
	}

	stored := res.Clone()
	stored["resourceType"] = p.resourceType
	stored.SetID(id)
	stored.StampMeta(version, time.Now())
	s.Store(p.resourceType, id, version, stored)
}

// persistToPod is the write-through half of pod synchronization. Failures
// are logged and swallowed: the in-memory store is the source of truth
// during the session and the API caller already observed success.
func (p *Provider) persistToPod(ctx context.Context, tc *auth.TokenContext, res fhir.Resource) {
	if p.pod == nil || !p.pod.Enabled() {
		return
	}
	if err := p.pod.EnsureContainers(ctx, tc); err != nil {
		p.logger.Error().Err(err).Msg("failed to ensure pod containers")
	}
	if err := p.pod.Save(ctx, tc, res); err != nil {
		p.logger.Error().Str("id", res.ID()).Err(err).Msg("failed to persist resource to pod")
	}
}

func (p *Provider) deleteFromPod(ctx context.Context, tc *auth.TokenContext, id string) {
	if p.pod == nil || !p.pod.Enabled() {
		return
	}
	if err := p.pod.Delete(ctx, tc, p.resourceType, id); err != nil {
		p.logger.Error().Str("id", id).Err(err).Msg("failed to delete resource from pod")
	}
}
