// Package export writes stored form records to an .xlsx workbook.
//
// The workbook has a "Forms" summary sheet with one row per record, followed
// by one sheet per known form type whose columns are that type's header fields.
// Signature images are never written; signed slots show "Signed".
package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/schema"
)

// SummarySheet is the name of the first sheet.
const SummarySheet = "Forms"

// SignedMarker replaces a captured signature image.
const SignedMarker = "Signed"

var summaryHeaders = []string{
	"Local ID", "Form Type", "Title", "Status", "Last Modified",
	"Sync Attempts", "Last Error", "Remote ID", "Document URL",
}

var summaryWidths = []float64{9, 10, 40, 9, 20, 8, 30, 16, 50}

// Options configures a workbook export.
type Options struct {
	// FormTypes supplies titles and per-type sheets. Defaults to the built-ins.
	FormTypes *formtype.Registry
	// Location for timestamps. Defaults to time.Local.
	Location *time.Location
}

// Filename returns the default export file name for t.
func Filename(t time.Time) string {
	return fmt.Sprintf("DocFlow_%s.xlsx", t.Format("20060102_150405"))
}

// Workbook builds the export. Records are written in the order given.
func Workbook(recs []*schema.Record, opts Options) (*excelize.File, error) {
	if opts.FormTypes == nil {
		opts.FormTypes = formtype.Builtin()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	w := &writer{f: f, opts: opts, headerStyle: headerStyle}

	if err := w.summary(recs); err != nil {
		_ = f.Close()
		return nil, err
	}

	byType := make(map[string][]*schema.Record)
	for _, rec := range recs {
		byType[rec.FormType] = append(byType[rec.FormType], rec)
	}
	types := make([]string, 0, len(byType))
	for id := range byType {
		types = append(types, id)
	}
	sort.Strings(types)

	for _, id := range types {
		cfg, ok := opts.FormTypes.Get(id)
		if !ok {
			continue
		}
		if err := w.formTypeSheet(cfg, byType[id]); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return f, nil
}

// WriteFile builds the export and saves it to path.
func WriteFile(path string, recs []*schema.Record, opts Options) error {
	f, err := Workbook(recs, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

type writer struct {
	f           *excelize.File
	opts        Options
	headerStyle int
}

func (w *writer) header(sheet string, headers []string, widths []float64) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := w.f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header %s: %w", cell, err)
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := w.f.SetCellStyle(sheet, "A1", last, w.headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = w.f.SetColWidth(sheet, col, col, width)
	}

	return w.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (w *writer) row(sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func (w *writer) summary(recs []*schema.Record) error {
	if err := w.header(SummarySheet, summaryHeaders, summaryWidths); err != nil {
		return err
	}

	for i, rec := range recs {
		title := rec.FormType
		if cfg, ok := w.opts.FormTypes.Get(rec.FormType); ok {
			title = cfg.Title(rec)
		}

		values := []interface{}{
			rec.LocalID,
			rec.FormType,
			title,
			string(rec.Status),
			w.timestamp(rec.LastModified),
			rec.SyncAttempts,
			rec.LastError,
			rec.RemoteID,
			rec.DocumentURL,
		}
		if err := w.row(SummarySheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) formTypeSheet(cfg *formtype.Config, recs []*schema.Record) error {
	sheet := cfg.ShortName
	if sheet == "" {
		sheet = cfg.ID
	}
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headers := []string{"Local ID", "Status"}
	widths := []float64{9, 9}
	for _, field := range cfg.HeaderFields {
		headers = append(headers, field.Label)
		widths = append(widths, 18)
	}
	for _, slot := range cfg.SupervisorSignatures {
		headers = append(headers, slot.Label)
		widths = append(widths, 12)
	}
	if cfg.HasMitigations {
		headers = append(headers, "Mitigations")
		widths = append(widths, 12)
	}
	if cfg.HasWorkerSignatures {
		headers = append(headers, "Workers")
		widths = append(widths, 30)
	}

	if err := w.header(sheet, headers, widths); err != nil {
		return err
	}

	for i, rec := range recs {
		values := []interface{}{rec.LocalID, string(rec.Status)}
		for _, field := range cfg.HeaderFields {
			values = append(values, cellValue(rec.Field(field.ID)))
		}
		for _, slot := range cfg.SupervisorSignatures {
			values = append(values, cellValue(rec.Field(slot.ID)))
		}
		if cfg.HasMitigations {
			values = append(values, len(rec.Mitigations))
		}
		if cfg.HasWorkerSignatures {
			values = append(values, workerNames(rec.Workers))
		}
		if err := w.row(sheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(w.opts.Location).Format("2006-01-02 15:04:05")
}

func cellValue(v string) string {
	if schema.IsDataURLImage(v) {
		return SignedMarker
	}
	return v
}

func workerNames(workers []schema.WorkerSignature) string {
	out := ""
	for _, ws := range workers {
		if ws.Name == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += ws.Name
	}
	return out
}
