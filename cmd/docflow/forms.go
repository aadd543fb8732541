package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/schema"
	"github.com/pacetech/docflow/internal/ui"
)

var formsCmd = &cobra.Command{
	Use:     "forms",
	GroupID: "forms",
	Short:   "Inspect and manage locally stored forms",
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored forms, most recently modified first",
	Example: `  docflow forms list
  docflow forms list --status error
  docflow forms list --type flra --since "2 days ago"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

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

		if asJSON {
			return printJSON(recs)
		}

		if len(recs) == 0 {
			fmt.Println(ui.MutedStyle.Render("No forms found."))
			return nil
		}

		titleWidth := ui.Width(os.Stdout) - 70
		if titleWidth < 20 {
			titleWidth = 20
		}

		rows := make([][]string, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, []string{
				strconv.FormatInt(rec.LocalID, 10),
				rec.FormType,
				ui.Truncate(recordTitle(formTypes, rec), titleWidth),
				ui.Status(rec.Status),
				rec.LastModified.Local().Format("2006-01-02 15:04"),
				strconv.Itoa(rec.SyncAttempts),
				ui.Truncate(rec.LastError, 30),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Type", "Title", "Status", "Modified", "Tries", "Last Error"}, rows))
		fmt.Println(ui.MutedStyle.Render(fmt.Sprintf("%d form(s)", len(recs))))
		return nil
	},
}

var formsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		store := openStore(ctx)
		defer store.Close()

		rec, err := store.Get(ctx, id)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(rec)
		}

		formTypes, err := loadFormTypes()
		if err != nil {
			return err
		}
		cfg, _ := formTypes.Get(rec.FormType)

		fmt.Println(ui.TitleStyle.Render(recordTitle(formTypes, rec)))
		pairs := [][2]string{
			{"Local ID", strconv.FormatInt(rec.LocalID, 10)},
			{"Form type", rec.FormType},
			{"Status", ui.Status(rec.Status)},
			{"Modified", rec.LastModified.Local().Format(time.RFC1123)},
			{"Sync attempts", strconv.Itoa(rec.SyncAttempts)},
		}
		if rec.LastError != "" {
			pairs = append(pairs, [2]string{"Last error", rec.LastError})
		}
		if rec.RemoteID != "" {
			pairs = append(pairs, [2]string{"Remote ID", rec.RemoteID})
		}
		if rec.DocumentURL != "" {
			pairs = append(pairs, [2]string{"Document", rec.DocumentURL})
		}
		if rec.Document != nil {
			pairs = append(pairs, [2]string{"Attachment", fmt.Sprintf("%s (%d bytes)", rec.Document.Filename, len(rec.Document.Bytes))})
		}
		ui.KeyValues(os.Stdout, pairs)

		if len(rec.Fields) > 0 {
			fmt.Println()
			fmt.Println(ui.TitleStyle.Render("Fields"))
			fields := make([][2]string, 0, len(rec.Fields))
			for _, name := range rec.FieldNames() {
				label := name
				if cfg != nil {
					label = cfg.Label(name)
				}
				fields = append(fields, [2]string{label, displayValue(rec.Fields[name])})
			}
			ui.KeyValues(os.Stdout, fields)
		}

		if len(rec.Checklists) > 0 {
			fmt.Println()
			fmt.Println(ui.TitleStyle.Render("Checklists"))
			keys := make([]string, 0, len(rec.Checklists))
			for k := range rec.Checklists {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				title := k
				if cfg != nil {
					if cl, ok := cfg.Checklists[k]; ok && cl.Title != "" {
						title = cl.Title
					}
				}
				fmt.Printf("  %s: %d item(s) answered\n", title, len(rec.Checklists[k]))
			}
		}

		if len(rec.Mitigations) > 0 {
			fmt.Println()
			fmt.Println(ui.TitleStyle.Render("Mitigations"))
			for _, m := range rec.Mitigations {
				fmt.Printf("  %s → %s (%s)\n", m.Hazard, m.Control, m.Initial)
			}
		}

		if len(rec.Workers) > 0 {
			fmt.Println()
			fmt.Println(ui.TitleStyle.Render("Workers"))
			for _, w := range rec.Workers {
				fmt.Printf("  %s %s\n", w.Name, displayValue(w.Signature))
			}
		}
		return nil
	},
}

var formsSaveCmd = &cobra.Command{
	Use:   "save <file.json>",
	Short: "Save a form record file to the local store as pending",
	Long: `Save a form record JSON file (as written by the form layer) to the local
store. A record without localId is created; a record with localId replaces
the stored one and goes back to pending. Ids are assigned by the store, so a
localId that is not stored (or was deleted) is refused.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := schema.ReadRecordFile(args[0])
		if err != nil {
			return err
		}

		if id, _ := cmd.Flags().GetInt64("id"); id > 0 {
			rec.LocalID = id
		}

		formTypes, err := loadFormTypes()
		if err != nil {
			return err
		}
		if err := validateRecord(formTypes, rec); err != nil {
			return err
		}

		ctx := cmd.Context()
		store := openStore(ctx)
		defer store.Close()

		id, err := store.Save(ctx, rec)
		if err != nil {
			return err
		}

		fmt.Printf("%s saved form %d (%s) as pending\n", ui.SuccessStyle.Render("✓"), id, rec.FormType)
		return nil
	},
}

var formsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete stored forms",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := parseID(a)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !ui.IsTerminal(os.Stdin) {
				return fmt.Errorf("refusing to delete without confirmation; pass --yes")
			}
			ok, err := ui.Confirm(
				fmt.Sprintf("Delete %d form(s)?", len(ids)),
				"Unsynced forms are lost for good.",
			)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println(ui.MutedStyle.Render("Cancelled."))
				return nil
			}
		}

		ctx := cmd.Context()
		store := openStore(ctx)
		defer store.Close()

		for _, id := range ids {
			if err := store.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s deleted form %d\n", ui.SuccessStyle.Render("✓"), id)
		}
		return nil
	},
}

var formsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts of stored forms by sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		store := openStore(ctx)
		defer store.Close()

		stats, err := store.GetStats(ctx)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(stats)
		}

		ui.KeyValues(os.Stdout, [][2]string{
			{"Total", strconv.Itoa(stats.Total)},
			{"Pending", ui.WarnStyle.Render(strconv.Itoa(stats.Pending))},
			{"Synced", ui.SuccessStyle.Render(strconv.Itoa(stats.Synced))},
			{"Error", ui.ErrorStyle.Render(strconv.Itoa(stats.Error))},
		})
		return nil
	},
}

func init() {
	formsListCmd.Flags().String("status", "", "filter by status (pending, synced, error)")
	formsListCmd.Flags().String("type", "", "filter by form type")
	formsListCmd.Flags().String("since", "", `only forms modified since ("2 days ago", 2024-05-01, 36h)`)
	formsListCmd.Flags().IntP("limit", "n", 0, "maximum number of forms (0 = all)")
	formsListCmd.Flags().Bool("json", false, "output JSON")

	formsShowCmd.Flags().Bool("json", false, "output the full record as JSON")
	formsSaveCmd.Flags().Int64("id", 0, "replace the stored form with this local id")
	formsDeleteCmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	formsStatsCmd.Flags().Bool("json", false, "output JSON")

	formsCmd.AddCommand(formsListCmd, formsShowCmd, formsSaveCmd, formsDeleteCmd, formsStatsCmd)
	rootCmd.AddCommand(formsCmd)
}

// listFilterFromFlags reads --status, --type, --since and --limit.
func listFilterFromFlags(cmd *cobra.Command) (db.ListFilter, error) {
	var filter db.ListFilter

	status, _ := cmd.Flags().GetString("status")
	filter.Status = schema.Status(status)
	if status != "" && !filter.Status.Valid() {
		return filter, fmt.Errorf("unknown status %q (want pending, synced or error)", status)
	}

	filter.FormType, _ = cmd.Flags().GetString("type")

	if since, _ := cmd.Flags().GetString("since"); since != "" {
		t, err := ui.ParseSince(since, time.Now())
		if err != nil {
			return filter, fmt.Errorf("invalid --since: %w", err)
		}
		filter.Since = t
	}

	if cmd.Flags().Lookup("limit") != nil {
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if filter.Limit < 0 {
			return filter, fmt.Errorf("--limit must not be negative")
		}
	}
	return filter, nil
}

func validateRecord(formTypes *formtype.Registry, rec *schema.Record) error {
	cfg, ok := formTypes.Get(rec.FormType)
	if !ok {
		return fmt.Errorf("unknown form type %q (known: %v)", rec.FormType, formTypes.IDs())
	}
	return cfg.Validate(rec)
}

func recordTitle(formTypes *formtype.Registry, rec *schema.Record) string {
	if cfg, ok := formTypes.Get(rec.FormType); ok {
		return cfg.Title(rec)
	}
	return rec.FormType
}

func displayValue(v string) string {
	if schema.IsDataURLImage(v) {
		return ui.MutedStyle.Render("[signature]")
	}
	return v
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid form id %q", s)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
