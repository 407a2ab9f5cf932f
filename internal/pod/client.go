// Package pod talks to the user's Solid pod: an LDP-style HTTP server that
// stores FHIR resources as RDF/Turtle documents under
// {pod}{containerPath}/{Type}/{id}.ttl.
package pod

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/auth"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

const (
	ldpContains      = "http://www.w3.org/ns/ldp#contains"
	ldpBasicLink     = `<http://www.w3.org/ns/ldp#BasicContainer>; rel="type"`
	contentTurtle    = "text/turtle"
	defaultPodTimeout = 30 * time.Second
)

// Client reads and writes a user's pod. A disabled client turns every
// operation into a no-op so the service can run without pod integration.
type Client struct {
	enabled       bool
	containerPath string
	http          *http.Client
	logger        zerolog.Logger
}

// NewClient creates a pod client. containerPath is the FHIR container root
// inside the pod (default /weare/fhir).
func NewClient(enabled bool, containerPath string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultPodTimeout
	}
	if containerPath == "" {
		containerPath = "/weare/fhir"
	}
	return &Client{
		enabled:       enabled,
		containerPath: strings.TrimSuffix(containerPath, "/"),
		http:          &http.Client{Timeout: timeout},
		logger:        logger.With().Str("component", "pod-client").Logger(),
	}
}

// Enabled reports whether pod integration is active.
func (c *Client) Enabled() bool { return c.enabled }

// BaseURL derives the pod base URL from the subject's WebID:
// https://host[:port]/profile/card#me -> https://host[:port].
func (c *Client) BaseURL(tc *auth.TokenContext) (string, error) {
	if tc == nil || tc.Subject == "" {
		return "", fmt.Errorf("no WebID available in access token")
	}
	u, err := url.Parse(tc.Subject)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("cannot derive pod URL from WebID %q", tc.Subject)
	}
	return u.Scheme + "://" + u.Host, nil
}

func (c *Client) containerURL(base, resourceType string) string {
	return base + c.containerPath + "/" + resourceType + "/"
}

func (c *Client) resourceURL(base, resourceType, id string) string {
	return c.containerURL(base, resourceType) + id + ".ttl"
}

func (c *Client) do(ctx context.Context, method, rawURL, token, contentType, link string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if link != "" {
		req.Header.Set("Link", link)
	}
	if method == http.MethodGet {
		req.Header.Set("Accept", contentTurtle)
	}
	return c.http.Do(req)
}

// List loads every resource of the given type from the pod. A 404 on the
// container means no resources of this type exist yet and is not an error.
func (c *Client) List(ctx context.Context, tc *auth.TokenContext, resourceType string) ([]fhir.Resource, error) {
	if !c.enabled {
		return nil, nil
	}
	base, err := c.BaseURL(tc)
	if err != nil {
		return nil, err
	}
	containerURL := c.containerURL(base, resourceType)

	urls, err := c.listContainer(ctx, containerURL, tc.Token)
	if err != nil {
		return nil, err
	}

	resources := make([]fhir.Resource, 0, len(urls))
	for _, u := range urls {
		if !strings.HasSuffix(u, ".ttl") {
			continue
		}
		res, err := c.fetchResource(ctx, u, tc.Token)
		if err != nil {
			c.logger.Warn().Str("url", u).Err(err).Msg("failed to load resource from pod")
			continue
		}
		if res != nil {
			resources = append(resources, res)
		}
	}
	c.logger.Debug().Str("type", resourceType).Int("count", len(resources)).Msg("loaded resources from pod")
	return resources, nil
}

func (c *Client) listContainer(ctx context.Context, containerURL, token string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, containerURL, token, "", "", nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", containerURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug().Str("url", containerURL).Msg("container does not exist yet")
		return nil, nil
	default:
		return nil, fmt.Errorf("list container %s: status %d", containerURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	triples, err := ParseTurtle(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse container listing: %w", err)
	}

	var contents []string
	for _, t := range triples {
		if t.Pred.String() == ldpContains {
			target := t.Obj.String()
			if !strings.HasPrefix(target, "http") {
				// Relative member IRIs resolve against the container.
				target = containerURL + strings.TrimPrefix(target, "/")
			}
			contents = append(contents, target)
		}
	}
	return contents, nil
}

func (c *Client) fetchResource(ctx context.Context, resourceURL, token string) (fhir.Resource, error) {
	resp, err := c.do(ctx, http.MethodGet, resourceURL, token, "", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return DecodeTurtle(string(body))
}

// Save writes a resource to the pod (write-through). The serialized Turtle
// is re-parsed locally before sending: a parse failure indicates a
// serializer bug and must not corrupt the pod.
func (c *Client) Save(ctx context.Context, tc *auth.TokenContext, res fhir.Resource) error {
	if !c.enabled {
		return nil
	}
	base, err := c.BaseURL(tc)
	if err != nil {
		return err
	}
	resourceURL := c.resourceURL(base, res.Type(), res.ID())

	turtle, err := EncodeTurtle(res, resourceURL)
	if err != nil {
		return fmt.Errorf("serialize %s/%s: %w", res.Type(), res.ID(), err)
	}
	if _, err := ParseTurtle(turtle); err != nil {
		return fmt.Errorf("serializer produced invalid turtle for %s/%s: %w", res.Type(), res.ID(), err)
	}

	resp, err := c.do(ctx, http.MethodPut, resourceURL, tc.Token, contentTurtle, "", strings.NewReader(turtle))
	if err != nil {
		return fmt.Errorf("PUT %s: %w", resourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("save %s: status %d", resourceURL, resp.StatusCode)
	}
	c.logger.Debug().Str("url", resourceURL).Msg("saved resource to pod")
	return nil
}

// Delete removes a resource from the pod. A 404 counts as success so
// deletes stay idempotent at the pod layer.
func (c *Client) Delete(ctx context.Context, tc *auth.TokenContext, resourceType, id string) error {
	if !c.enabled {
		return nil
	}
	base, err := c.BaseURL(tc)
	if err != nil {
		return err
	}
	resourceURL := c.resourceURL(base, resourceType, id)

	resp, err := c.do(ctx, http.MethodDelete, resourceURL, tc.Token, "", "", nil)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", resourceURL, err)
	}
	defer resp.Body.Close()
	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusNotFound {
		c.logger.Debug().Str("url", resourceURL).Msg("deleted resource from pod")
		return nil
	}
	return fmt.Errorf("delete %s: status %d", resourceURL, resp.StatusCode)
}

// EnsureContainers bootstraps the container hierarchy before the first
// write: /weare/, the FHIR container, and one container per user-data type.
func (c *Client) EnsureContainers(ctx context.Context, tc *auth.TokenContext) error {
	if !c.enabled {
		return nil
	}
	base, err := c.BaseURL(tc)
	if err != nil {
		return err
	}

	root := c.containerPath
	if i := strings.Index(root[1:], "/"); i >= 0 {
		root = root[:i+1]
	}
	containers := []struct {
		url   string
		title string
	}{
		{base + root + "/", "WellData Health Data"},
		{base + c.containerPath + "/", "FHIR Resources"},
	}
	for _, rt := range fhir.UserDataTypes {
		containers = append(containers, struct {
			url   string
			title string
		}{c.containerURL(base, rt), rt + " Resources"})
	}

	for _, cont := range containers {
		if err := c.createContainerIfMissing(ctx, cont.url, cont.title, tc.Token); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) createContainerIfMissing(ctx context.Context, containerURL, title, token string) error {
	resp, err := c.do(ctx, http.MethodHead, containerURL, token, "", "", nil)
	if err != nil {
		return fmt.Errorf("HEAD %s: %w", containerURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		return nil
	}

	turtle := fmt.Sprintf("@prefix ldp: <http://www.w3.org/ns/ldp#> .\n"+
		"@prefix dcterms: <http://purl.org/dc/terms/> .\n"+
		"<> a ldp:BasicContainer ;\n   dcterms:title %q .\n", title)

	createResp, err := c.do(ctx, http.MethodPut, containerURL, token, contentTurtle, ldpBasicLink, strings.NewReader(turtle))
	if err != nil {
		return fmt.Errorf("PUT %s: %w", containerURL, err)
	}
	defer createResp.Body.Close()
	if createResp.StatusCode < 200 || createResp.StatusCode >= 300 {
		c.logger.Warn().Str("url", containerURL).Int("status", createResp.StatusCode).Msg("failed to create container")
		return nil
	}
	c.logger.Debug().Str("url", containerURL).Msg("created container")
	return nil
}
