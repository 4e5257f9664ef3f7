package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	apperrors "github.com/talkingphoto/pipeline/internal/errors"
)

// responseMapping describes where in a vendor's JSON responses the normalized
// fields live. Expressions are JMESPath; States translates the vendor's own
// state strings into RenderState values.
type responseMapping struct {
	JobIDExpr     string
	StateExpr     string
	ProgressExpr  string
	ResultURLExpr string
	DetailExpr    string
	States        map[string]RenderState
}

type compiledMapping struct {
	jobID     jmespath.JMESPath
	state     jmespath.JMESPath
	progress  jmespath.JMESPath
	resultURL jmespath.JMESPath
	detail    jmespath.JMESPath
	states    map[string]RenderState
}

func compileMapping(m responseMapping) (*compiledMapping, error) {
	c := &compiledMapping{states: m.States}
	for _, e := range []struct {
		expr string
		dst  *jmespath.JMESPath
	}{
		{m.JobIDExpr, &c.jobID},
		{m.StateExpr, &c.state},
		{m.ProgressExpr, &c.progress},
		{m.ResultURLExpr, &c.resultURL},
		{m.DetailExpr, &c.detail},
	} {
		if strings.TrimSpace(e.expr) == "" {
			continue
		}
		compiled, err := jmespath.Compile(e.expr)
		if err != nil {
			return nil, fmt.Errorf("compile expression %q: %w", e.expr, err)
		}
		*e.dst = compiled
	}
	return c, nil
}

func searchString(expr jmespath.JMESPath, data any) string {
	if expr == nil {
		return ""
	}
	v, err := expr.Search(data)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func searchFloat(expr jmespath.JMESPath, data any) (float64, bool) {
	if expr == nil {
		return 0, false
	}
	v, err := expr.Search(data)
	if err != nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// VendorClientOptions bundles dependencies for newVendorClient.
type VendorClientOptions struct {
	Descriptor Descriptor
	BaseURL    string
	APIKey     string
	SubmitPath string
	// StatusPath must contain one %s placeholder for the vendor job id.
	StatusPath string
	Mapping    responseMapping
	// BuildSubmitBody translates the neutral request into the vendor's
	// submit payload.
	BuildSubmitBody func(req SubmitRequest) any
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// vendorClient is the shared HTTP adapter behind every real provider. The
// per-vendor constructors differ only in endpoints, payload shape, and
// response mapping.
type vendorClient struct {
	desc       Descriptor
	baseURL    string
	apiKey     string
	submitPath string
	statusPath string
	mapping    *compiledMapping
	buildBody  func(req SubmitRequest) any
	httpc      *http.Client
	logger     *slog.Logger
}

func newVendorClient(opts VendorClientOptions) (*vendorClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base URL is required", opts.Descriptor.Name)
	}
	if opts.BuildSubmitBody == nil {
		return nil, fmt.Errorf("provider %s: submit body builder is required", opts.Descriptor.Name)
	}
	mapping, err := compileMapping(opts.Mapping)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", opts.Descriptor.Name, err)
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "provider", "provider", opts.Descriptor.Name)
	}
	return &vendorClient{
		desc:       opts.Descriptor,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		submitPath: opts.SubmitPath,
		statusPath: opts.StatusPath,
		mapping:    mapping,
		buildBody:  opts.BuildSubmitBody,
		httpc:      httpc,
		logger:     logger,
	}, nil
}

// Descriptor returns the static routing characteristics.
func (c *vendorClient) Descriptor() Descriptor {
	return c.desc
}

// Submit starts a render and returns the vendor job id.
func (c *vendorClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeInternal, "%s: marshal submit payload", c.desc.Name)
	}

	data, err := c.doJSON(ctx, http.MethodPost, c.baseURL+c.submitPath, body)
	if err != nil {
		return "", err
	}

	jobID := searchString(c.mapping.jobID, data)
	if jobID == "" {
		return "", apperrors.Unavailablef("%s: submit response missing job id", c.desc.Name)
	}
	if c.logger != nil {
		c.logger.DebugContext(ctx, "render submitted", "job_id", req.JobID, "provider_job_id", jobID)
	}
	return jobID, nil
}

// Status fetches and normalizes the current state of a render.
func (c *vendorClient) Status(ctx context.Context, providerJobID string) (*RenderStatus, error) {
	url := c.baseURL + fmt.Sprintf(c.statusPath, providerJobID)
	data, err := c.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	raw := searchString(c.mapping.state, data)
	state, ok := c.mapping.states[strings.ToLower(raw)]
	if !ok {
		return nil, apperrors.Unavailablef("%s: unrecognized render state %q", c.desc.Name, raw)
	}

	status := &RenderStatus{State: state}
	if pct, ok := searchFloat(c.mapping.progress, data); ok {
		status.Percent = pct
	}
	status.ResultURL = searchString(c.mapping.resultURL, data)
	status.Detail = searchString(c.mapping.detail, data)

	if state == RenderFailed && status.Detail == "" {
		status.Detail = "provider reported failure without detail"
	}
	return status, nil
}

func (c *vendorClient) doJSON(ctx context.Context, method, url string, body []byte) (any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "%s: build request", c.desc.Name)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, c.mapTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "%s: read response", c.desc.Name)
	}

	if resp.StatusCode >= 400 {
		return nil, c.mapHTTPError(resp.StatusCode, resp.Header, payload)
	}

	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "%s: decode response", c.desc.Name)
	}
	return data, nil
}

func (c *vendorClient) mapTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrapf(err, apperrors.ErrCodeTimeout, "%s: request deadline exceeded", c.desc.Name)
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, c.desc.Name+": request canceled")
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.Wrapf(err, apperrors.ErrCodeTimeout, "%s: network timeout", c.desc.Name)
	default:
		return apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "%s: request failed", c.desc.Name)
	}
}

func (c *vendorClient) mapHTTPError(status int, header http.Header, payload []byte) error {
	detail := strings.TrimSpace(string(payload))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.RateLimitedAfter(
			fmt.Sprintf("%s: rate limited: %s", c.desc.Name, detail),
			parseRetryAfter(header.Get("Retry-After"), time.Now()),
		)
	case status == http.StatusPaymentRequired:
		return apperrors.PaymentRequired(fmt.Sprintf("%s: provider quota exhausted: %s", c.desc.Name, detail))
	case status == http.StatusRequestEntityTooLarge:
		return apperrors.PayloadTooLarge(fmt.Sprintf("%s: payload too large: %s", c.desc.Name, detail))
	case status == http.StatusNotFound:
		return apperrors.NotFoundf("%s: resource not found: %s", c.desc.Name, detail)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.Validationf("%s: rejected request: %s", c.desc.Name, detail)
	case status >= 500:
		return apperrors.Unavailablef("%s: provider error %d: %s", c.desc.Name, status, detail)
	default:
		return apperrors.Internalf("%s: unexpected status %d: %s", c.desc.Name, status, detail)
	}
}

// parseRetryAfter reads a Retry-After value, either delta-seconds or an HTTP
// date. Unparseable or past values come back as zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := when.Sub(now); d > 0 {
		return d
	}
	return 0
}
