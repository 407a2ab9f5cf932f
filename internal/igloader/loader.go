// Package igloader downloads a packaged FHIR Implementation Guide (.tgz)
// and loads its StructureDefinition and ImplementationGuide resources into
// the conformance registries.
package igloader

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/domain/conformance"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// Loader fetches and unpacks IG packages.
type Loader struct {
	http   *http.Client
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Loader {
	return &Loader{
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: logger.With().Str("component", "ig-loader").Logger(),
	}
}

// Load downloads the package at url and stores its conformance resources.
// An empty url skips the load quietly; malformed entries are logged and
// skipped rather than failing startup.
func (l *Loader) Load(ctx context.Context, url string, profiles, guides *conformance.Registry) error {
	if url == "" {
		l.logger.Info().Msg("no IG package URL configured, skipping IG load")
		return nil
	}
	l.logger.Info().Str("url", url).Msg("loading IG package")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("download IG package: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download IG package: status %d", resp.StatusCode)
	}

	sdCount, igCount, err := l.extract(resp.Body, profiles, guides)
	if err != nil {
		return err
	}
	l.logger.Info().
		Int("structure_definitions", sdCount).
		Int("implementation_guides", igCount).
		Msg("loaded IG package")
	return nil
}

func (l *Loader) extract(body io.Reader, profiles, guides *conformance.Registry) (int, int, error) {
	gz, err := gzip.NewReader(body)
	if err != nil {
		return 0, 0, fmt.Errorf("open IG package: %w", err)
	}
	defer gz.Close()

	var sdCount, igCount int
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sdCount, igCount, fmt.Errorf("read IG package: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := strings.TrimPrefix(header.Name, "package/")
		// Only package-root JSON resources; examples and narratives live in
		// subdirectories.
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if strings.HasPrefix(name, ".") || name == "package.json" {
			continue
		}

		switch {
		case strings.HasPrefix(name, "StructureDefinition-"):
			if res, err := decodeResource(tr); err != nil {
				l.logger.Warn().Str("entry", header.Name).Err(err).Msg("failed to parse StructureDefinition")
			} else if res.Type() == fhir.TypeStructureDefinition {
				profiles.Store(res)
				sdCount++
			}
		case strings.HasPrefix(name, "ImplementationGuide-"):
			if res, err := decodeResource(tr); err != nil {
				l.logger.Warn().Str("entry", header.Name).Err(err).Msg("failed to parse ImplementationGuide")
			} else if res.Type() == fhir.TypeImplementationGuide {
				guides.Store(res)
				igCount++
			}
		}
	}
	return sdCount, igCount, nil
}

func decodeResource(r io.Reader) (fhir.Resource, error) {
	var m map[string]interface{}
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return fhir.Resource(m), nil
}
