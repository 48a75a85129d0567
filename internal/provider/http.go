package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stylesafe/internal/domain"
)

// HTTPOptions configures the HTTP generation provider adapter.
type HTTPOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// HTTPClient talks to a generation provider exposing the submit/poll/fetch/
// cancel contract over JSON. Wire-level semantics belong to the provider;
// this adapter only normalizes shapes and classifies failures.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

// NewHTTPClient builds the adapter. An empty base URL falls back to the
// hosted default.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.stylesafe.dev/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      opts.Model,
	}
}

type wireRow struct {
	Prompt   string   `json:"prompt"`
	RowHash  string   `json:"row_hash"`
	Seed     *int64   `json:"seed,omitempty"`
	Strength *float64 `json:"strength,omitempty"`
}

type wireAttachment struct {
	Name    string  `json:"name"`
	Data    string  `json:"data"`
	Weight  float64 `json:"weight"`
	Purpose string  `json:"purpose"`
}

type submitRequest struct {
	Model       string           `json:"model,omitempty"`
	Instruction string           `json:"instruction"`
	Rows        []wireRow        `json:"rows"`
	Attachments []wireAttachment `json:"attachments,omitempty"`
	Variants    int              `json:"variants"`
}

type submitResponse struct {
	ID             string `json:"id"`
	EstimatedCount int    `json:"estimated_count"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type fetchResponse struct {
	Results []struct {
		RowHash string `json:"row_hash"`
		Variant int    `json:"variant"`
		Image   string `json:"image"`
		URL     string `json:"url"`
		Format  string `json:"format"`
	} `json:"results"`
	Problems []domain.Problem `json:"problems"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
}

func (c *HTTPClient) Submit(ctx context.Context, batch Batch) (Submission, error) {
	if c.token == "" {
		return Submission{}, errors.New("provider: API key is missing")
	}
	payload := submitRequest{
		Model:       c.model,
		Instruction: batch.Instruction,
		Variants:    batch.Variants,
	}
	for _, row := range batch.Rows {
		payload.Rows = append(payload.Rows, wireRow{
			Prompt:   row.Prompt,
			RowHash:  row.CanonicalHash(),
			Seed:     row.Seed,
			Strength: row.Strength,
		})
	}
	for _, att := range batch.Attachments {
		payload.Attachments = append(payload.Attachments, wireAttachment{
			Name:    att.Name,
			Data:    base64.StdEncoding.EncodeToString(att.Data),
			Weight:  att.Weight,
			Purpose: att.Purpose,
		})
	}

	var out submitResponse
	if err := c.post(ctx, "/generations", payload, &out); err != nil {
		return Submission{}, err
	}
	if out.ID == "" {
		return Submission{}, &Error{Message: "empty submission id", Code: out.Code}
	}
	return Submission{ProviderJobID: out.ID, EstimatedCount: out.EstimatedCount}, nil
}

func (c *HTTPClient) Poll(ctx context.Context, providerJobID string) (Status, error) {
	var out statusResponse
	if err := c.get(ctx, "/generations/"+providerJobID, &out); err != nil {
		return "", err
	}
	return normalizeStatus(out.Status), nil
}

func (c *HTTPClient) Fetch(ctx context.Context, providerJobID string) (Outcome, error) {
	var out fetchResponse
	if err := c.get(ctx, "/generations/"+providerJobID+"/results", &out); err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{Problems: out.Problems}
	for _, res := range out.Results {
		img := GeneratedImage{
			RowHash: res.RowHash,
			Variant: res.Variant,
			URL:     res.URL,
			Format:  res.Format,
		}
		if res.Image != "" {
			data, err := base64.StdEncoding.DecodeString(res.Image)
			if err != nil {
				return Outcome{}, fmt.Errorf("provider: decode result image: %w", err)
			}
			img.Data = data
		}
		outcome.Results = append(outcome.Results, img)
	}
	return outcome, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, providerJobID string) (Status, error) {
	var out statusResponse
	if err := c.post(ctx, "/generations/"+providerJobID+"/cancel", struct{}{}, &out); err != nil {
		return "", err
	}
	return normalizeStatus(out.Status), nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *HTTPClient) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures count as transient: the request may never
		// have reached the provider.
		return &Error{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errBody struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		msg := errBody.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{
			StatusCode: resp.StatusCode,
			Code:       errBody.Code,
			Message:    msg,
			Transient:  transientStatus(resp.StatusCode),
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// transientStatus classifies HTTP codes: rate limiting and server-side
// trouble retry, everything else in the 4xx range is a permanent rejection.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func normalizeStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "pending", "submitted":
		return StatusQueued
	case "running", "processing", "starting":
		return StatusRunning
	case "succeeded", "completed", "success":
		return StatusSucceeded
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusFailed
	}
}
