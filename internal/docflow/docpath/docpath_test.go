package docpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacetech/docflow/internal/docflow/formtype"
)

func TestDerive(t *testing.T) {
	reg := formtype.Builtin()
	flra, ok := reg.Get("flra")
	require.True(t, ok)
	manlift, ok := reg.Get("manlift")
	require.True(t, ok)

	tests := []struct {
		name     string
		formType string
		fields   map[string]string
		cfg      *formtype.Config
		opts     Options
		want     Target
	}{
		{
			name:     "flra with job number",
			formType: "flra",
			fields:   map[string]string{"assessmentDate": "2024-05-01", "jobFileNumber": "A1-23"},
			cfg:      flra,
			want: Target{
				Library:            "SafetyFormPDFs",
				FolderPath:         "FLRA/2024",
				Filename:           "20240501_A123_FLRA.pdf",
				ServerRelativePath: "/sites/DocFlow/SafetyFormPDFs/FLRA/2024",
			},
		},
		{
			name:     "manlift falls back to unit number",
			formType: "manlift",
			fields:   map[string]string{"inspectionDate": "2023-12-31", "manliftNumber": "ML 7/B"},
			cfg:      manlift,
			opts:     Options{Library: "Inspections", SitePath: "/sites/Field"},
			want: Target{
				Library:            "Inspections",
				FolderPath:         "Manlift/2023",
				Filename:           "20231231_ML7B_MANLIFT.pdf",
				ServerRelativePath: "/sites/Field/Inspections/Manlift/2023",
			},
		},
		{
			name:     "missing date and job",
			formType: "flra",
			fields:   map[string]string{},
			cfg:      flra,
			want: Target{
				Library:            "SafetyFormPDFs",
				FolderPath:         "FLRA/NODATE",
				Filename:           "NODATE_NOJOB_FLRA.pdf",
				ServerRelativePath: "/sites/DocFlow/SafetyFormPDFs/FLRA/NODATE",
			},
		},
		{
			name:     "job with only symbols",
			formType: "flra",
			fields:   map[string]string{"assessmentDate": "2024-05-01", "jobFileNumber": "--"},
			cfg:      flra,
			want: Target{
				Library:            "SafetyFormPDFs",
				FolderPath:         "FLRA/2024",
				Filename:           "20240501_NOJOB_FLRA.pdf",
				ServerRelativePath: "/sites/DocFlow/SafetyFormPDFs/FLRA/2024",
			},
		},
		{
			name:     "unknown form type without config",
			formType: "scaffold",
			fields:   map[string]string{"inspectionDate": "2025-01-09", "jobFileNumber": "J9"},
			want: Target{
				Library:            "SafetyFormPDFs",
				FolderPath:         "SCAFFOLD/2025",
				Filename:           "20250109_J9_scaffold.pdf",
				ServerRelativePath: "/sites/DocFlow/SafetyFormPDFs/SCAFFOLD/2025",
			},
		},
		{
			name:     "flra without config uses assessmentDate",
			formType: "flra",
			fields:   map[string]string{"assessmentDate": "2024-02-03", "inspectionDate": "1999-01-01"},
			want: Target{
				Library:            "SafetyFormPDFs",
				FolderPath:         "FLRA/2024",
				Filename:           "20240203_NOJOB_flra.pdf",
				ServerRelativePath: "/sites/DocFlow/SafetyFormPDFs/FLRA/2024",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.formType, tt.fields, tt.cfg, tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDerive_Deterministic(t *testing.T) {
	cfg, _ := formtype.Builtin().Get("flra")
	fields := map[string]string{"assessmentDate": "2024-05-01", "jobFileNumber": "A1-23"}

	first := Derive("flra", fields, cfg, Options{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Derive("flra", fields, cfg, Options{}))
	}
	assert.Equal(t, "FLRA/2024/20240501_A123_FLRA.pdf", first.FullPath())
}

func TestJobToken_Order(t *testing.T) {
	cfg, _ := formtype.Builtin().Get("manlift")
	fields := map[string]string{"jobFileNumber": "J-1", "manliftNumber": "M-2"}
	assert.Equal(t, "J1", JobToken(fields, cfg))
}
