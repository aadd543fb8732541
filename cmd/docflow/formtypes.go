package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pacetech/docflow/internal/ui"
)

var formTypesCmd = &cobra.Command{
	Use:     "formtypes [id]",
	GroupID: "forms",
	Short:   "List form types, or print one form type's definition",
	Long: `Without arguments, list the known form types. With an id, print that
form type's definition as YAML (the format accepted by formtypes.file).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formTypes, err := loadFormTypes()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			ft, ok := formTypes.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown form type %q (known: %s)", args[0], strings.Join(formTypes.IDs(), ", "))
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(map[string]interface{}{"formTypes": map[string]interface{}{ft.ID: ft}})
		}

		rows := [][]string{}
		for _, ft := range formTypes.All() {
			required := 0
			for _, f := range ft.HeaderFields {
				if f.Required {
					required++
				}
			}
			rows = append(rows, []string{
				ft.ID,
				ft.Name,
				ft.FormNumber,
				ft.ShortName,
				strconv.Itoa(len(ft.HeaderFields)),
				strconv.Itoa(required),
				strconv.Itoa(len(ft.Checklists)),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Name", "Form #", "Short", "Fields", "Required", "Checklists"}, rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formTypesCmd)
}
