package docpath_test

import (
	"fmt"

	"github.com/pacetech/docflow/internal/docflow/docpath"
	"github.com/pacetech/docflow/internal/docflow/formtype"
)

func ExampleDerive() {
	cfg, _ := formtype.Builtin().Get("flra")

	target := docpath.Derive("flra", map[string]string{
		"assessmentDate": "2024-05-01",
		"jobFileNumber":  "A1-23",
	}, cfg, docpath.Options{})

	fmt.Println(target.Filename)
	fmt.Println(target.FolderPath)
	fmt.Println(target.ServerRelativePath)
	// Output:
	// 20240501_A123_FLRA.pdf
	// FLRA/2024
	// /sites/DocFlow/SafetyFormPDFs/FLRA/2024
}
