package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pacetech/docflow/internal/docflow/docpath"
	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/remote"
	"github.com/pacetech/docflow/internal/docflow/schema"
)

// Keys of the structured parts in the outbound flat form.
const (
	FormKeyChecklists  = "ChecklistData"
	FormKeyMitigations = "Mitigations"
	FormKeyWorkers     = "WorkerSignatures"
	FormKeyFormType    = "formType"
	FormKeyTitle       = "title"
)

// WorkerSignatureField is the signature field name of worker row i.
func WorkerSignatureField(i int) string {
	return fmt.Sprintf("worker_signature_%d", i)
}

// bookkeepingKeys never leave the device, even when the form layer put them
// among the flat fields.
var bookkeepingKeys = map[string]bool{
	"localId":       true,
	"status":        true,
	"syncAttempts":  true,
	"lastModified":  true,
	"lastError":     true,
	"pdfBlob":       true,
	"document":      true,
	"remoteId":      true,
	"documentUrl":   true,
	"signatureUrls": true,
}

// ExtractSignatures collects the embedded signature images of rec.
//
// Flat fields holding a data-URL image come first, sorted by field name, with
// role supervisor. Worker rows follow in row order, named worker_signature_<i>,
// with role worker and the worker's name.
func ExtractSignatures(rec *schema.Record) []remote.Signature {
	sigs := make([]remote.Signature, 0)

	for _, name := range rec.FieldNames() {
		if bookkeepingKeys[name] {
			continue
		}
		v := rec.Fields[name]
		if !schema.IsDataURLImage(v) {
			continue
		}
		sigs = append(sigs, remote.Signature{
			FieldName: name,
			DataURL:   v,
			Type:      remote.RoleSupervisor,
		})
	}

	for i, w := range rec.Workers {
		if !schema.IsDataURLImage(w.Signature) {
			continue
		}
		sigs = append(sigs, remote.Signature{
			FieldName:  WorkerSignatureField(i),
			DataURL:    w.Signature,
			Type:       remote.RoleWorker,
			WorkerName: w.Name,
		})
	}

	return sigs
}

// ShapeForm builds the outbound flat form of rec.
//
// Data-URL images are replaced with schema.ImagePlaceholder; the bytes travel
// in the signature list instead. Checklists, mitigations and worker rows are
// carried as JSON strings. Store bookkeeping and the remote outcome are left
// out. cfg may be nil, in which case no title is added.
func ShapeForm(rec *schema.Record, cfg *formtype.Config) (map[string]any, error) {
	form := make(map[string]any, len(rec.Fields)+5)

	for k, v := range rec.Fields {
		if bookkeepingKeys[k] {
			continue
		}
		if schema.IsDataURLImage(v) {
			v = schema.ImagePlaceholder
		}
		form[k] = v
	}

	if len(rec.Checklists) > 0 {
		s, err := jsonString(rec.Checklists)
		if err != nil {
			return nil, fmt.Errorf("checklists: %w", err)
		}
		form[FormKeyChecklists] = s
	}

	if len(rec.Mitigations) > 0 {
		s, err := jsonString(rec.Mitigations)
		if err != nil {
			return nil, fmt.Errorf("mitigations: %w", err)
		}
		form[FormKeyMitigations] = s
	}

	if len(rec.Workers) > 0 {
		workers := make([]schema.WorkerSignature, len(rec.Workers))
		for i, w := range rec.Workers {
			if schema.IsDataURLImage(w.Signature) {
				w.Signature = schema.ImagePlaceholder
			}
			workers[i] = w
		}
		s, err := jsonString(workers)
		if err != nil {
			return nil, fmt.Errorf("worker signatures: %w", err)
		}
		form[FormKeyWorkers] = s
	}

	form[FormKeyFormType] = rec.FormType
	if cfg != nil {
		form[FormKeyTitle] = cfg.Title(rec)
	}

	return form, nil
}

// BuildRequest assembles the submission for rec. doc may be nil, in which
// case the request carries no attachment.
func BuildRequest(rec *schema.Record, cfg *formtype.Config, doc *schema.Document, paths docpath.Options, now time.Time) (*remote.SyncRequest, error) {
	form, err := ShapeForm(rec, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to shape record %d: %w", rec.LocalID, err)
	}

	req := &remote.SyncRequest{
		Form:          form,
		FormType:      rec.FormType,
		PDFUploadInfo: docpath.Derive(rec.FormType, rec.Fields, cfg, paths),
		Signatures:    ExtractSignatures(rec),
		Metadata: remote.Metadata{
			LocalID:   rec.LocalID,
			Timestamp: now.UTC(),
		},
	}

	if doc != nil {
		req.PDF = &remote.Attachment{
			Filename:    doc.Filename,
			FolderPath:  doc.FolderPath,
			ContentType: doc.ContentType,
			Data:        doc.Bytes,
		}
	}

	return req, nil
}

func jsonString(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
