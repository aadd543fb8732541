// Package render produces the document attached to an outbound submission.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pacetech/docflow/internal/docflow/docpath"
	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/schema"
)

// BundleContentType is the content type of a print bundle.
const BundleContentType = "application/json"

// ErrNoConfig means the record's form type has no configuration to render with.
var ErrNoConfig = errors.New("no form type configuration")

// Renderer turns a finished record into a document.
// Implementations must be pure functions of their inputs.
type Renderer interface {
	Render(formType string, rec *schema.Record, cfg *formtype.Config) (*schema.Document, error)
}

// Func adapts a function to the Renderer interface.
type Func func(formType string, rec *schema.Record, cfg *formtype.Config) (*schema.Document, error)

// Render calls f.
func (f Func) Render(formType string, rec *schema.Record, cfg *formtype.Config) (*schema.Document, error) {
	return f(formType, rec, cfg)
}

// Bundle renders a print bundle: the record content and its form-type
// configuration as one JSON document that the print service lays out.
type Bundle struct {
	// Paths sets the library and site used for naming.
	Paths docpath.Options
	// Now stamps generatedAt. Defaults to time.Now.
	Now func() time.Time
}

// bundle is the serialized print bundle.
type bundle struct {
	FormType    string           `json:"formType"`
	Title       string           `json:"title"`
	Data        *schema.Record   `json:"data"`
	Config      *formtype.Config `json:"config"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Render implements Renderer.
func (b Bundle) Render(formType string, rec *schema.Record, cfg *formtype.Config) (*schema.Document, error) {
	if cfg == nil {
		return nil, fmt.Errorf("render %s: %w", formType, ErrNoConfig)
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	// Content only; bookkeeping and any previous document stay out.
	data := &schema.Record{
		FormType:    rec.FormType,
		Fields:      rec.Fields,
		Checklists:  rec.Checklists,
		Mitigations: rec.Mitigations,
		Workers:     rec.Workers,
	}

	content, err := json.Marshal(bundle{
		FormType:    formType,
		Title:       cfg.Title(rec),
		Data:        data,
		Config:      cfg,
		GeneratedAt: now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: failed to marshal bundle: %w", formType, err)
	}

	target := docpath.Derive(formType, rec.Fields, cfg, b.Paths)
	return &schema.Document{
		Bytes:       content,
		Filename:    target.Filename,
		FolderPath:  target.FolderPath,
		ContentType: BundleContentType,
	}, nil
}
