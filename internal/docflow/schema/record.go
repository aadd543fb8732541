package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DataURLImagePrefix marks a field value as an embedded signature image.
const DataURLImagePrefix = "data:image/"

// ImagePlaceholder replaces embedded images in outbound flat records.
const ImagePlaceholder = "[IMAGE]"

// Record is one locally persisted inspection form.
//
// Records are created by the form layer, mutated only through the store's
// Save and UpdateStatus operations, and removed by an explicit delete.
type Record struct {
	// ===== Identity =====
	LocalID  int64  `json:"localId,omitempty"` // 0 until the first save
	FormType string `json:"formType"`          // immutable after creation

	// ===== Form Content =====
	Fields      map[string]string                `json:"fields,omitempty"`
	Checklists  map[string]map[int]ChecklistItem `json:"checklists,omitempty"`
	Mitigations []Mitigation                     `json:"mitigations,omitempty"`
	Workers     []WorkerSignature                `json:"workerSignatures,omitempty"`
	Document    *Document                        `json:"document,omitempty"`

	// ===== Sync Bookkeeping =====
	Status       Status    `json:"status,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
	SyncAttempts int       `json:"syncAttempts,omitempty"`
	LastError    string    `json:"lastError,omitempty"`

	// ===== Remote Outcome (set after a successful sync) =====
	RemoteID      string        `json:"remoteId,omitempty"`
	DocumentURL   string        `json:"documentUrl,omitempty"`
	SignatureURLs SignatureURLs `json:"signatureUrls,omitempty"`
}

// ChecklistItem is a single answered checklist row.
type ChecklistItem struct {
	Value       string `json:"value"`
	FreeText    string `json:"freeText,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// Mitigation is one hazard/control row of a risk assessment.
type Mitigation struct {
	Hazard  string `json:"hazard"`
	Control string `json:"control"`
	Initial string `json:"initial"`
}

// WorkerSignature is one worker acknowledgment row.
type WorkerSignature struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
}

// Document is a rendered attachment for a record.
type Document struct {
	Bytes       []byte `json:"bytes"`
	Filename    string `json:"filename"`
	FolderPath  string `json:"folderPath"`
	ContentType string `json:"contentType,omitempty"`
}

// SignatureURLs maps a signature field name to the URL the remote stored it at.
type SignatureURLs map[string]string

// UnmarshalJSON accepts either an object or an array. Array entries are keyed
// by their index.
func (s *SignatureURLs) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*s = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("failed to parse signature url list: %w", err)
		}
		out := make(SignatureURLs, len(list))
		for i, u := range list {
			out[strconv.Itoa(i)] = u
		}
		*s = out
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse signature urls: %w", err)
	}
	*s = m
	return nil
}

// Validate checks the caller-supplied part of a record.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.FormType) == "" {
		return fmt.Errorf("formType is required")
	}
	if r.LocalID < 0 {
		return fmt.Errorf("localId must not be negative (got %d)", r.LocalID)
	}
	if r.SyncAttempts < 0 {
		return fmt.Errorf("syncAttempts must not be negative (got %d)", r.SyncAttempts)
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	return nil
}

// Field returns a flat field value, or "" when absent.
func (r *Record) Field(id string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[id]
}

// FieldNames returns the flat field ids in sorted order.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsDataURLImage reports whether v is an embedded image.
func IsDataURLImage(v string) bool {
	return strings.HasPrefix(v, DataURLImagePrefix)
}

// ReadRecordFile reads and parses a record JSON file handed over by the form layer.
func ReadRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", path, err)
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record file %s: %w", path, err)
	}

	return &rec, nil
}

// WriteRecordFile writes a record to dir as pretty-printed JSON and returns the path.
func WriteRecordFile(dir, name string, rec *Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("cannot write invalid record: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write record file %s: %w", path, err)
	}

	return path, nil
}
