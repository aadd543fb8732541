package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacetech/docflow/internal/docflow/docpath"
)

func sampleRequest() *SyncRequest {
	return &SyncRequest{
		Form:     map[string]any{"formType": "flra", "supervisor": "[IMAGE]"},
		FormType: "flra",
		PDF: &Attachment{
			Filename:    "20240501_A123_FLRA.pdf",
			FolderPath:  "FLRA/2024",
			ContentType: "application/pdf",
			Data:        []byte("%PDF"),
		},
		PDFUploadInfo: docpath.Target{
			Library:            "SafetyFormPDFs",
			FolderPath:         "FLRA/2024",
			Filename:           "20240501_A123_FLRA.pdf",
			ServerRelativePath: "/sites/DocFlow/SafetyFormPDFs/FLRA/2024",
		},
		Signatures: []Signature{{FieldName: "supervisor", DataURL: "data:image/png;base64,AAAA", Type: RoleSupervisor}},
		Metadata:   Metadata{LocalID: 7, Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func TestSubmit_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sync-form", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "flra", body["formType"])
		pdf := body["pdf"].(map[string]any)
		assert.Equal(t, "JVBERg==", pdf["base64"])
		meta := body["metadata"].(map[string]any)
		assert.EqualValues(t, 7, meta["localId"])
		info := body["pdfUploadInfo"].(map[string]any)
		assert.Equal(t, "/sites/DocFlow/SafetyFormPDFs/FLRA/2024", info["serverRelativePath"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"R-1","pdfUrl":"https://x/doc.pdf","signatureUrls":["https://x/s0.png"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", nil)
	assert.Equal(t, srv.URL+"/api", c.Endpoint())

	resp, err := c.Submit(context.Background(), "tok", sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "R-1", resp.ID)
	assert.Equal(t, "https://x/doc.pdf", resp.PDFURL)
	assert.Equal(t, "https://x/s0.png", resp.SignatureURLs["0"])
}

func TestSubmit_NullPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "null", string(body["pdf"]))
		_, _ = w.Write([]byte(`{"id":"R-2"}`))
	}))
	defer srv.Close()

	req := sampleRequest()
	req.PDF = nil
	resp, err := NewClient(srv.URL, nil).Submit(context.Background(), "tok", req)
	require.NoError(t, err)
	assert.Equal(t, "R-2", resp.ID)
	assert.Nil(t, resp.SignatureURLs)
}

func TestSubmit_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "library locked", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Submit(context.Background(), "tok", sampleRequest())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.Equal(t, "library locked", statusErr.Body)
	assert.NotEmpty(t, statusErr.RequestID)
	assert.Contains(t, err.Error(), "HTTP 409")
}

func TestSubmit_UnusableSuccessBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "<html>ok</html>"},
		{"missing id", `{"pdfUrl":"https://x/doc.pdf"}`},
		{"blank id", `{"id":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewClient(srv.URL, nil).Submit(context.Background(), "tok", sampleRequest())
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrInvalidResponse)

			var statusErr *StatusError
			assert.False(t, errors.As(err, &statusErr))
		})
	}
}

func TestSubmit_TransportFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil).Submit(context.Background(), "tok", sampleRequest())
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestSubmit_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, &http.Client{Timeout: 50 * time.Millisecond})
	_, err := c.Submit(context.Background(), "tok", sampleRequest())
	require.Error(t, err)
}

func TestSubmit_NoTokenOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"R"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Submit(context.Background(), "", sampleRequest())
	require.NoError(t, err)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	c := NewClient(srv.URL, nil)
	assert.NoError(t, c.Ping(context.Background()))

	srv.Close()
	assert.Error(t, c.Ping(context.Background()))
}
