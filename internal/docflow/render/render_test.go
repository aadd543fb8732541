package render

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/schema"
)

func TestBundle_Render(t *testing.T) {
	cfg, ok := formtype.Builtin().Get("flra")
	require.True(t, ok)

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := Bundle{Now: func() time.Time { return fixed }}

	rec := &schema.Record{
		LocalID:      9,
		FormType:     "flra",
		Status:       schema.StatusError,
		SyncAttempts: 2,
		LastError:    "HTTP 500",
		Fields: map[string]string{
			"client":         "Acme",
			"site":           "Plant 4",
			"assessmentDate": "2024-05-01",
			"jobFileNumber":  "A1-23",
		},
	}

	doc, err := r.Render("flra", rec, cfg)
	require.NoError(t, err)
	assert.Equal(t, "20240501_A123_FLRA.pdf", doc.Filename)
	assert.Equal(t, "FLRA/2024", doc.FolderPath)
	assert.Equal(t, BundleContentType, doc.ContentType)

	var got map[string]any
	require.NoError(t, json.Unmarshal(doc.Bytes, &got))
	assert.Equal(t, "flra", got["formType"])
	assert.Equal(t, "Acme - Plant 4 - 2024-05-01", got["title"])
	assert.Equal(t, "2024-05-01T12:00:00Z", got["generatedAt"])

	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, data, "localId")
	assert.NotContains(t, data, "status")
	assert.NotContains(t, data, "lastError")
	assert.NotContains(t, data, "syncAttempts")
}

func TestBundle_Pure(t *testing.T) {
	cfg, _ := formtype.Builtin().Get("manlift")
	fixed := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	r := Bundle{Now: func() time.Time { return fixed }}
	rec := &schema.Record{FormType: "manlift", Fields: map[string]string{"manliftNumber": "7"}}

	a, err := r.Render("manlift", rec, cfg)
	require.NoError(t, err)
	b, err := r.Render("manlift", rec, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBundle_NoConfig(t *testing.T) {
	_, err := Bundle{}.Render("scaffold", &schema.Record{FormType: "scaffold"}, nil)
	require.ErrorIs(t, err, ErrNoConfig)
}

func TestFunc(t *testing.T) {
	boom := errors.New("boom")
	var r Renderer = Func(func(string, *schema.Record, *formtype.Config) (*schema.Document, error) {
		return nil, boom
	})
	_, err := r.Render("flra", &schema.Record{}, nil)
	assert.ErrorIs(t, err, boom)
}
