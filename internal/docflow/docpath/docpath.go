// Package docpath derives where a record's document is stored remotely.
//
// Derivation is a pure function of the form type, the record's date and job
// fields and the form-type configuration:
//
//	filename:   <yyyymmdd>_<job>_<shortName>.pdf
//	folderPath: <folderName>/<yyyy>
//	serverRelativePath: <sitePath>/<library>/<folderPath>
//
// A missing date becomes NODATE and a missing job number becomes NOJOB.
package docpath

import (
	"path"
	"strings"

	"github.com/pacetech/docflow/internal/docflow/formtype"
)

const (
	// DefaultLibrary is the document library used when none is configured.
	DefaultLibrary = "SafetyFormPDFs"
	// DefaultSitePath is the server-relative site prefix.
	DefaultSitePath = "/sites/DocFlow"

	// NoDate replaces a missing date in filenames and folders.
	NoDate = "NODATE"
	// NoJob replaces a missing job or unit number.
	NoJob = "NOJOB"

	defaultDateField = "inspectionDate"
)

// defaultJobFields are tried when the form type names none.
var defaultJobFields = []string{"jobFileNumber", "manliftNumber"}

// Target is the upload location of a record's document.
type Target struct {
	Library            string `json:"library"`
	FolderPath         string `json:"folderPath"`
	Filename           string `json:"filename"`
	ServerRelativePath string `json:"serverRelativePath"`
}

// FullPath returns folderPath/filename.
func (t Target) FullPath() string {
	return t.FolderPath + "/" + t.Filename
}

// Options sets the library and site the target lives in.
type Options struct {
	Library  string
	SitePath string
}

// Derive computes the upload target. cfg may be nil for unknown form types.
func Derive(formType string, fields map[string]string, cfg *formtype.Config, opts Options) Target {
	library := opts.Library
	if library == "" {
		library = DefaultLibrary
	}
	site := opts.SitePath
	if site == "" {
		site = DefaultSitePath
	}

	date := DateToken(formType, fields, cfg)
	job := JobToken(fields, cfg)

	name := formType
	folder := strings.ToUpper(formType)
	if cfg != nil {
		if cfg.ShortName != "" {
			name = cfg.ShortName
		}
		if cfg.FolderName != "" {
			folder = cfg.FolderName
		}
	}

	folderPath := folder + "/" + yearToken(date)

	return Target{
		Library:            library,
		FolderPath:         folderPath,
		Filename:           date + "_" + job + "_" + name + ".pdf",
		ServerRelativePath: path.Join("/", site, library, folderPath),
	}
}

// DateToken returns the record date with dashes removed, or NoDate.
func DateToken(formType string, fields map[string]string, cfg *formtype.Config) string {
	field := defaultDateField
	switch {
	case cfg != nil && cfg.DateField != "":
		field = cfg.DateField
	case formType == "flra":
		field = "assessmentDate"
	}

	date := strings.ReplaceAll(strings.TrimSpace(fields[field]), "-", "")
	if date == "" {
		return NoDate
	}
	return date
}

// JobToken returns the first job field that still has ASCII letters or digits
// once everything else is stripped, or NoJob.
func JobToken(fields map[string]string, cfg *formtype.Config) string {
	candidates := defaultJobFields
	if cfg != nil && len(cfg.JobFields) > 0 {
		candidates = cfg.JobFields
	}

	for _, f := range candidates {
		if v := alnum(fields[f]); v != "" {
			return v
		}
	}
	return NoJob
}

func yearToken(date string) string {
	if len(date) < 4 {
		return NoDate
	}
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return NoDate
		}
	}
	return date[:4]
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
