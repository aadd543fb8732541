package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pacetech/docflow/internal/docflow/export"
	"github.com/pacetech/docflow/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "forms",
	Short:   "Export stored forms to an Excel workbook",
	Example: `  docflow export
  docflow export --status synced --since 2024-05-01 -o may.xlsx`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = export.Filename(time.Now())
		}
		if filepath.Ext(out) != ".xlsx" {
			out += ".xlsx"
		}

		ctx := cmd.Context()
		store := openStore(ctx)
		defer store.Close()

		formTypes, err := loadFormTypes()
		if err != nil {
			return err
		}

		recs, err := store.List(ctx, filter)
		if err != nil {
			return err
		}

		if err := export.WriteFile(out, recs, export.Options{FormTypes: formTypes}); err != nil {
			return err
		}

		fmt.Printf("%s exported %d form(s) to %s\n", ui.SuccessStyle.Render("✓"), len(recs), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default DocFlow_<timestamp>.xlsx)")
	exportCmd.Flags().String("status", "", "only forms with this status")
	exportCmd.Flags().String("type", "", "only forms of this type")
	exportCmd.Flags().String("since", "", "only forms modified since")

	rootCmd.AddCommand(exportCmd)
}
