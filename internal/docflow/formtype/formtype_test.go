package formtype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacetech/docflow/internal/docflow/schema"
)

func TestBuiltin(t *testing.T) {
	reg := Builtin()
	assert.Equal(t, []string{"flra", "manlift"}, reg.IDs())

	flra, ok := reg.Get("flra")
	require.True(t, ok)
	assert.Equal(t, "FLRA", flra.ShortName)
	assert.Equal(t, "assessmentDate", flra.DateField)
	assert.Equal(t, "Job File #", flra.Label("jobFileNumber"))

	manlift, ok := reg.Get("manlift")
	require.True(t, ok)
	assert.Equal(t, []string{"jobFileNumber", "manliftNumber"}, manlift.JobFields)
}

func TestTitle(t *testing.T) {
	reg := Builtin()

	tests := []struct {
		name     string
		formType string
		fields   map[string]string
		want     string
	}{
		{
			name:     "flra",
			formType: "flra",
			fields:   map[string]string{"client": "Acme", "site": "Plant 4", "assessmentDate": "2024-05-01"},
			want:     "Acme - Plant 4 - 2024-05-01",
		},
		{
			name:     "flra missing fields",
			formType: "flra",
			fields:   map[string]string{"client": "Acme"},
			want:     "Acme -  - ",
		},
		{
			name:     "manlift",
			formType: "manlift",
			fields:   map[string]string{"manliftNumber": "ML-7", "inspectionDate": "2024-06-02"},
			want:     "Manlift ML-7 - 2024-06-02",
		},
		{
			name:     "nil fields",
			formType: "manlift",
			want:     "Manlift  - ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, ok := reg.Get(tt.formType)
			require.True(t, ok)
			got := cfg.Title(&schema.Record{FormType: tt.formType, Fields: tt.fields})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTitle_NoTemplateUsesName(t *testing.T) {
	cfg := &Config{ID: "x", Name: "Toolbox Talk"}
	require.NoError(t, cfg.compile())
	assert.Equal(t, "Toolbox Talk", cfg.Title(&schema.Record{FormType: "x"}))
}

func TestCompile_InvalidTitleTemplate(t *testing.T) {
	cfg := &Config{ID: "x", Name: "Broken", TitleTemplate: "{{.client"}
	err := cfg.compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid title template")
}

func TestValidate_RequiredFields(t *testing.T) {
	cfg, ok := Builtin().Get("flra")
	require.True(t, ok)

	err := cfg.Validate(&schema.Record{FormType: "flra", Fields: map[string]string{"client": "Acme", "site": "  "}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site")
	assert.Contains(t, err.Error(), "assessmentDate")
	assert.NotContains(t, err.Error(), "client")

	err = cfg.Validate(&schema.Record{FormType: "flra", Fields: map[string]string{
		"client": "Acme", "site": "Plant 4", "assessmentDate": "2024-05-01",
	}})
	assert.NoError(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	assert.Len(t, reg.All(), 2)
}

func TestLoad_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formtypes.yaml")
	content := `formTypes:
  flra:
    name: Field Level Risk Assessment v2
    shortName: FLRA2
    headerFields:
      - {id: client, label: Client, type: text, required: true}
  toolbox:
    name: Toolbox Talk
    shortName: TBT
    dateField: talkDate
    title: "Toolbox {{.topic}}"
    headerFields:
      - {id: topic, label: Topic, type: select, options: [ice, heat]}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"flra", "manlift", "toolbox"}, reg.IDs())

	flra, _ := reg.Get("flra")
	assert.Equal(t, "FLRA2", flra.ShortName)

	toolbox, _ := reg.Get("toolbox")
	assert.Equal(t, "toolbox", toolbox.ID)
	assert.Equal(t, "Toolbox {{.topic}}", toolbox.TitleTemplate)
	assert.Equal(t, "Toolbox ice", toolbox.Title(&schema.Record{Fields: map[string]string{"topic": "ice"}}))
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formtypes.toml")
	content := `
[formTypes.scaffold]
name = "Scaffold Inspection"
shortName = "SCAF"
folderName = "Scaffold"
dateField = "inspectionDate"
jobFields = ["jobFileNumber"]

[[formTypes.scaffold.headerFields]]
id = "inspectionDate"
label = "Date"
type = "date"
required = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	reg, err := Load(path)
	require.NoError(t, err)

	cfg, ok := reg.Get("scaffold")
	require.True(t, ok)
	assert.Equal(t, "Scaffold", cfg.FolderName)
	require.Len(t, cfg.HeaderFields, 1)
	assert.True(t, cfg.HeaderFields[0].Required)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			file:    "a.yaml",
			content: "formTypes:\n  x:\n    shortName: X\n",
			wantErr: "name is required",
		},
		{
			name:    "duplicate field",
			file:    "b.yaml",
			content: "formTypes:\n  x:\n    name: X\n    headerFields:\n      - {id: a, type: text}\n      - {id: a, type: text}\n",
			wantErr: "duplicate header field",
		},
		{
			name:    "invalid type",
			file:    "c.yaml",
			content: "formTypes:\n  x:\n    name: X\n    headerFields:\n      - {id: a, type: colour}\n",
			wantErr: "invalid type",
		},
		{
			name:    "select without options",
			file:    "d.yaml",
			content: "formTypes:\n  x:\n    name: X\n    headerFields:\n      - {id: a, type: select}\n",
			wantErr: "require options",
		},
		{
			name:    "id mismatch",
			file:    "e.yaml",
			content: "formTypes:\n  x:\n    id: y\n    name: X\n",
			wantErr: "does not match key",
		},
		{
			name:    "bad template",
			file:    "f.yaml",
			content: "formTypes:\n  x:\n    name: X\n    title: \"{{.a\"\n",
			wantErr: "invalid title template",
		},
		{
			name:    "unsupported extension",
			file:    "g.json",
			content: "{}",
			wantErr: "unsupported form types format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
