// Package formtype holds the form-type configuration registry.
//
// Each form type describes how the form layer renders a record (header fields,
// checklists, signature slots) and how the sync path names it (short name,
// folder, date and job fields, title template). The built-in FLRA and manlift
// definitions are embedded; a deployment may replace or extend them with a
// YAML or TOML file.
package formtype

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/pacetech/docflow/internal/docflow/schema"
)

//go:embed formtypes.yaml
var builtinYAML []byte

// FieldType represents the input type of a header field.
type FieldType string

// Supported header field types.
const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeDate     FieldType = "date"
	FieldTypeNumber   FieldType = "number"
	FieldTypeSelect   FieldType = "select"
)

// IsValid checks if the field type is a supported type.
func (ft FieldType) IsValid() bool {
	switch ft {
	case FieldTypeText, FieldTypeTextarea, FieldTypeDate, FieldTypeNumber, FieldTypeSelect:
		return true
	default:
		return false
	}
}

// Field is one header input of a form type.
type Field struct {
	ID       string    `yaml:"id" toml:"id" json:"id"`
	Label    string    `yaml:"label" toml:"label" json:"label"`
	Type     FieldType `yaml:"type" toml:"type" json:"type"`
	Required bool      `yaml:"required" toml:"required" json:"required,omitempty"`
	Options  []string  `yaml:"options" toml:"options" json:"options,omitempty"`
}

// SignatureSlot is a named supervisor signature captured on the form.
type SignatureSlot struct {
	ID    string `yaml:"id" toml:"id" json:"id"`
	Label string `yaml:"label" toml:"label" json:"label"`
}

// Checklist is a titled list of yes/no/other items.
type Checklist struct {
	Title string   `yaml:"title" toml:"title" json:"title"`
	Items []string `yaml:"items" toml:"items" json:"items"`
}

// Config describes one form type.
type Config struct {
	ID         string `yaml:"id" toml:"id" json:"id"`
	Name       string `yaml:"name" toml:"name" json:"name"`
	FormNumber string `yaml:"formNumber" toml:"formNumber" json:"formNumber"`
	Revision   string `yaml:"revision" toml:"revision" json:"revision,omitempty"`
	ShortName  string `yaml:"shortName" toml:"shortName" json:"shortName,omitempty"`
	FolderName string `yaml:"folderName" toml:"folderName" json:"folderName,omitempty"`

	// DateField drives the filename date and folder year.
	DateField string `yaml:"dateField" toml:"dateField" json:"dateField,omitempty"`
	// JobFields are tried in order; the first non-empty value names the job.
	JobFields []string `yaml:"jobFields" toml:"jobFields" json:"jobFields,omitempty"`
	// TitleTemplate is a text/template over the flat fields.
	TitleTemplate string `yaml:"title" toml:"title" json:"title,omitempty"`

	HeaderFields         []Field              `yaml:"headerFields" toml:"headerFields" json:"headerFields"`
	SupervisorSignatures []SignatureSlot      `yaml:"supervisorSignatures" toml:"supervisorSignatures" json:"supervisorSignatures,omitempty"`
	Checklists           map[string]Checklist `yaml:"checklists" toml:"checklists" json:"checklists,omitempty"`
	HasMitigations       bool                 `yaml:"hasMitigations" toml:"hasMitigations" json:"hasMitigations,omitempty"`
	MitigationRows       int                  `yaml:"mitigationRows" toml:"mitigationRows" json:"mitigationRows,omitempty"`
	HasWorkerSignatures  bool                 `yaml:"hasWorkerSignatures" toml:"hasWorkerSignatures" json:"hasWorkerSignatures,omitempty"`
	WorkerSignatureRows  int                  `yaml:"workerSignatureRows" toml:"workerSignatureRows" json:"workerSignatureRows,omitempty"`

	title *template.Template
}

// file is the on-disk shape of a form-type configuration file.
type file struct {
	FormTypes map[string]*Config `yaml:"formTypes" toml:"formTypes"`
}

// Registry is a validated set of form types keyed by id.
type Registry struct {
	types map[string]*Config
}

// Builtin returns the registry of embedded form types.
func Builtin() *Registry {
	reg, err := parse(builtinYAML, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("builtin form types are invalid: %v", err))
	}
	return reg
}

// Load returns the built-in form types merged with the file at path.
// Types in the file replace built-ins with the same id. An empty path returns
// the built-ins; a missing file is an error.
func Load(path string) (*Registry, error) {
	reg := Builtin()
	if path == "" {
		return reg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form types file: %w", err)
	}

	user, err := parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("form types file %s: %w", path, err)
	}

	for id, cfg := range user.types {
		reg.types[id] = cfg
	}
	return reg, nil
}

func parse(data []byte, ext string) (*Registry, error) {
	var f file
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported form types format %q", ext)
	}

	reg := &Registry{types: make(map[string]*Config, len(f.FormTypes))}
	for id, cfg := range f.FormTypes {
		if cfg == nil {
			return nil, fmt.Errorf("form type %q: empty definition", id)
		}
		if cfg.ID == "" {
			cfg.ID = id
		}
		if cfg.ID != id {
			return nil, fmt.Errorf("form type %q: id %q does not match key", id, cfg.ID)
		}
		if err := cfg.compile(); err != nil {
			return nil, err
		}
		reg.types[id] = cfg
	}
	return reg, nil
}

// Get returns the form type with the given id.
func (r *Registry) Get(id string) (*Config, bool) {
	cfg, ok := r.types[id]
	return cfg, ok
}

// IDs returns the registered form type ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every form type ordered by id.
func (r *Registry) All() []*Config {
	out := make([]*Config, 0, len(r.types))
	for _, id := range r.IDs() {
		out = append(out, r.types[id])
	}
	return out
}

// compile validates the definition and parses its title template.
func (c *Config) compile() error {
	if c.Name == "" {
		return fmt.Errorf("form type %q: name is required", c.ID)
	}

	seen := make(map[string]bool)
	for i, f := range c.HeaderFields {
		if f.ID == "" {
			return fmt.Errorf("form type %q: header field %d: id is required", c.ID, i)
		}
		if seen[f.ID] {
			return fmt.Errorf("form type %q: duplicate header field %q", c.ID, f.ID)
		}
		seen[f.ID] = true

		if !f.Type.IsValid() {
			return fmt.Errorf("form type %q: field %q: invalid type %q", c.ID, f.ID, f.Type)
		}
		if f.Type == FieldTypeSelect && len(f.Options) == 0 {
			return fmt.Errorf("form type %q: field %q: select fields require options", c.ID, f.ID)
		}
	}

	if c.TitleTemplate != "" {
		tmpl, err := template.New(c.ID).Option("missingkey=zero").Parse(c.TitleTemplate)
		if err != nil {
			return fmt.Errorf("form type %q: invalid title template: %w", c.ID, err)
		}
		c.title = tmpl
	}
	return nil
}

// Validate reports the required header fields that are blank in rec.
func (c *Config) Validate(rec *schema.Record) error {
	var missing []string
	for _, f := range c.HeaderFields {
		if f.Required && strings.TrimSpace(rec.Field(f.ID)) == "" {
			missing = append(missing, f.ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required fields: %s", c.ID, strings.Join(missing, ", "))
	}
	return nil
}

// Title derives the display title of a record.
// Without a title template the form name is used.
func (c *Config) Title(rec *schema.Record) string {
	if c.title == nil {
		return c.Name
	}

	fields := rec.Fields
	if fields == nil {
		fields = map[string]string{}
	}

	var b strings.Builder
	if err := c.title.Execute(&b, fields); err != nil {
		return c.Name
	}
	return b.String()
}

// Label returns the display label of a header field, or the id when unknown.
func (c *Config) Label(fieldID string) string {
	for _, f := range c.HeaderFields {
		if f.ID == fieldID {
			return f.Label
		}
	}
	return fieldID
}
