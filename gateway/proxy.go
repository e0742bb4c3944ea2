package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brickfolio/control-plane/shared/tenancy"
	"github.com/brickfolio/control-plane/shared/utils"
)

// RendererClient forwards resolved tenant traffic to the site renderer.
type RendererClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRendererClient creates a renderer client.
func NewRendererClient(baseURL string) *RendererClient {
	return &RendererClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ServeSite proxies the request to the renderer for the tenant bound to the
// request context. Only live tenants are served; everything else is a
// generic 404 so the tenant's lifecycle state never leaks to visitors.
func (rc *RendererClient) ServeSite(c *gin.Context) {
	tenant, err := tenancy.MustTenant(c.Request.Context())
	if err != nil {
		utils.NotFoundResponse(c, "Not found")
		return
	}
	if !tenant.Live() {
		utils.NotFoundResponse(c, "Not found")
		return
	}

	targetURL := rc.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	var body io.Reader
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to read request body")
			return
		}
		body = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to create request")
		return
	}

	// Copy headers
	for key, values := range c.Request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	// The renderer trusts these; visitor-supplied values were resolved
	// away by the middleware, never forwarded.
	req.Header.Set("X-Tenant-ID", tenant.ID.String())
	req.Header.Set("X-Tenant-Shard", tenant.Shard)
	req.Header.Set("X-Forwarded-Host", c.Request.Host)

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to reach site renderer")
		return
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to read response")
		return
	}

	// Copy response headers
	for key, values := range resp.Header {
		for _, value := range values {
			c.Header(key, value)
		}
	}

	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), responseBody)
}

// HealthCheck checks if the renderer is reachable.
func (rc *RendererClient) HealthCheck() error {
	req, err := http.NewRequest("GET", rc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("renderer returned status %d", resp.StatusCode)
	}

	return nil
}
