// Package hydrate loads a fresh session's initial resources: from the
// user's pod when integration is enabled, from dev data otherwise.
package hydrate

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/domain/records"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/auth"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/pod"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/session"
)

// Hydrator fills new sessions on first use. It is registered with the
// access token middleware; the session's once-latch guarantees a single run
// per session even under concurrent first requests.
type Hydrator struct {
	pod          *pod.Client
	providers    map[string]*records.Provider
	devData      *DevDataLoader
	logger       zerolog.Logger
}

func New(podClient *pod.Client, providers map[string]*records.Provider, devData *DevDataLoader, logger zerolog.Logger) *Hydrator {
	return &Hydrator{
		pod:       podClient,
		providers: providers,
		devData:   devData,
		logger:    logger.With().Str("component", "hydrator").Logger(),
	}
}

// LoadSession hydrates the session with every user-data resource type. The
// token context arrives as an argument: hydration runs on the first
// request's goroutine but must not depend on ambient request state.
func (h *Hydrator) LoadSession(tc *auth.TokenContext, s *session.Session) error {
	if h.pod != nil && h.pod.Enabled() {
		return h.loadFromPod(tc, s)
	}
	return h.loadDevData(s)
}

func (h *Hydrator) loadFromPod(tc *auth.TokenContext, s *session.Session) error {
	ctx := context.Background()
	for _, resourceType := range fhir.UserDataTypes {
		provider := h.providers[resourceType]
		if provider == nil {
			continue
		}
		resources, err := h.pod.List(ctx, tc, resourceType)
		if err != nil {
			h.logger.Error().Str("type", resourceType).Err(err).Msg("failed to load resources from pod")
			continue
		}
		for _, res := range resources {
			provider.StoreInSession(s, res)
		}
		h.logger.Info().
			Str("type", resourceType).
			Int("count", len(resources)).
			Str("session", s.Key()).
			Msg("hydrated from pod")
	}
	return nil
}

func (h *Hydrator) loadDevData(s *session.Session) error {
	if h.devData == nil {
		return nil
	}
	for _, resourceType := range fhir.UserDataTypes {
		provider := h.providers[resourceType]
		if provider == nil {
			continue
		}
		resources, err := h.devData.Load(resourceType)
		if err != nil {
			h.logger.Warn().Str("type", resourceType).Err(err).Msg("failed to load dev data")
			continue
		}
		for _, res := range resources {
			provider.StoreInSession(s, res)
		}
		h.logger.Info().
			Str("type", resourceType).
			Int("count", len(resources)).
			Str("session", s.Key()).
			Msg("hydrated from dev data")
	}
	return nil
}
