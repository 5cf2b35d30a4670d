// Package authoring talks to the recipe authoring service over HTTP.
package authoring

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/entrhq/forge-recipe/pkg/types"
)

// ErrTimeout is returned when the service does not answer within the client timeout.
// Its text classifies as an authoring-service timeout.
var ErrTimeout = errors.New("authoring: authoring service timed out")

// ErrBadResponse is returned for non-2xx answers and undecodable bodies.
var ErrBadResponse = errors.New("authoring: bad response")

const planPatchPath = "/plan-patch"

// Config holds the client settings.
type Config struct {
	BaseURL     string        `json:"base_url" yaml:"base_url" default:"http://localhost:8000" validate:"required,url"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" default:"12s" validate:"gte=1ms"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries" default:"1" validate:"gte=0,lte=10"`
	RetryWaitMS int           `json:"retry_wait_ms" yaml:"retry_wait_ms" default:"200" validate:"gte=0,lte=10000"`
	Debug       bool          `json:"debug" yaml:"debug" default:"false"`
}

// PlanPatchRequest asks the service for a patch that fixes a failed step.
type PlanPatchRequest struct {
	RequestID        string           `json:"requestId"`
	StepID           string           `json:"step_id"`
	ErrorType        types.ErrorKind  `json:"error_type"`
	URL              string           `json:"url"`
	Title            string           `json:"title,omitempty"`
	FailedSelector   string           `json:"failed_selector,omitempty"`
	FailedAction     *types.ActionRef `json:"failed_action,omitempty"`
	DOMSnippet       string           `json:"dom_snippet,omitempty"`
	ScreenshotBase64 string           `json:"screenshot_base64,omitempty"`
}

// NewPlanPatchRequest builds a request from a failure with a fresh request id.
func NewPlanPatchRequest(fc types.FailureContext) PlanPatchRequest {
	req := PlanPatchRequest{
		RequestID:      uuid.New().String(),
		StepID:         fc.StepID,
		ErrorType:      fc.ErrorKind,
		URL:            fc.URL,
		Title:          fc.Title,
		FailedSelector: fc.Selector(),
		DOMSnippet:     fc.DOMSnippet,
	}
	if fc.FailedAction != nil {
		a := fc.FailedAction.Clone()
		req.FailedAction = &a
	}
	return req
}

type errorBody struct {
	Detail interface{} `json:"detail"`
}

// Client calls the authoring service.
type Client struct {
	client *resty.Client
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetDebug(cfg.Debug)
	return &Client{client: c}
}

// PlanPatch posts req to /plan-patch and returns the proposed payload.
func (c *Client) PlanPatch(ctx context.Context, req PlanPatchRequest) (types.PatchPayload, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	var payload types.PatchPayload
	var failure errorBody
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&payload).
		SetError(&failure).
		Post(planPatchPath)
	if err != nil {
		if isTimeout(ctx, err) {
			return types.PatchPayload{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return types.PatchPayload{}, fmt.Errorf("authoring: plan-patch request failed: %w", err)
	}
	if resp.IsError() {
		return types.PatchPayload{}, fmt.Errorf("%w: plan-patch %s: %v", ErrBadResponse, resp.Status(), failure.Detail)
	}
	if payload.RequestID != "" && payload.RequestID != req.RequestID {
		return types.PatchPayload{}, fmt.Errorf("%w: request id mismatch (sent %s, got %s)", ErrBadResponse, req.RequestID, payload.RequestID)
	}
	if payload.RequestID == "" {
		payload.RequestID = req.RequestID
	}
	return payload, nil
}

// PlanForFailure builds a request from fc and calls PlanPatch. A screenshot at
// fc.ScreenshotRef is attached when it can be read.
func (c *Client) PlanForFailure(ctx context.Context, fc types.FailureContext) (types.PatchPayload, error) {
	req := NewPlanPatchRequest(fc)
	if fc.ScreenshotRef != "" {
		if raw, err := os.ReadFile(fc.ScreenshotRef); err == nil {
			req.ScreenshotBase64 = base64.StdEncoding.EncodeToString(raw)
		}
	}
	return c.PlanPatch(ctx, req)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
