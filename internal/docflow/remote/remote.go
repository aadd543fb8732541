// Package remote is the HTTP client for the DocFlow sync endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pacetech/docflow/internal/docflow/docpath"
	"github.com/pacetech/docflow/internal/docflow/schema"
)

// DefaultTimeout bounds one request when no client is supplied.
const DefaultTimeout = 60 * time.Second

// ErrInvalidResponse reports a 2xx response that does not carry a usable
// sync result.
var ErrInvalidResponse = errors.New("invalid sync response")

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// SyncRequest is the body of POST <endpoint>/sync-form.
type SyncRequest struct {
	Form          map[string]any `json:"form"`
	FormType      string         `json:"formType"`
	PDF           *Attachment    `json:"pdf"`
	PDFUploadInfo docpath.Target `json:"pdfUploadInfo"`
	Signatures    []Signature    `json:"signatures"`
	Metadata      Metadata       `json:"metadata"`
}

// Attachment is a rendered document, base64 encoded on the wire.
type Attachment struct {
	Filename    string `json:"filename"`
	FolderPath  string `json:"folderPath"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"base64"`
}

// Signature roles.
const (
	RoleSupervisor = "supervisor"
	RoleWorker     = "worker"
)

// Signature is one embedded signature image sent beside the form.
type Signature struct {
	FieldName  string `json:"fieldName"`
	DataURL    string `json:"dataUrl"`
	Type       string `json:"type"`
	WorkerName string `json:"workerName,omitempty"`
}

// Metadata identifies the submitting record.
type Metadata struct {
	LocalID   int64     `json:"localId"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncResponse is the success body of the sync endpoint.
type SyncResponse struct {
	ID            string               `json:"id"`
	PDFURL        string               `json:"pdfUrl"`
	SignatureURLs schema.SignatureURLs `json:"signatureUrls"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("remote returned HTTP %d", e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Submitter sends one record to the remote system.
type Submitter interface {
	Submit(ctx context.Context, token string, req *SyncRequest) (*SyncResponse, error)
}

// Client talks to the sync endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for endpoint. A nil httpClient gets DefaultTimeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     httpClient,
	}
}

// Endpoint returns the base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit posts req to <endpoint>/sync-form.
//
// Transport faults are returned as-is; non-2xx responses as *StatusError.
func (c *Client) Submit(ctx context.Context, token string, req *SyncRequest) (*SyncResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/sync-form", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sync request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			RequestID:  requestID,
		}
	}

	var out SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body (HTTP %d, request %s)", ErrInvalidResponse, resp.StatusCode, requestID)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, fmt.Errorf("%w: missing id (request %s)", ErrInvalidResponse, requestID)
	}
	return &out, nil
}

// Ping reports whether the endpoint answers at all. Any HTTP response,
// whatever its status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}
