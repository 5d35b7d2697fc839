package output_test

import (
	"fmt"

	"github.com/blackwell-systems/snapledger/internal/output"
	"github.com/blackwell-systems/snapledger/internal/verify"
)

// Example showing how to render verification differences
func ExampleRenderDifferences() {
	report := &verify.Report{
		Differences: []verify.Difference{
			{Kind: verify.Changed, Path: "config/app.yaml"},
			{Kind: verify.Added, Path: "config/local.yaml"},
		},
	}

	fmt.Print(output.RenderDifferences(report))
	// Output:
	// CHANGED: config/app.yaml
	// ADDED: config/local.yaml
	// ✗ 2 difference(s): 0 missing, 1 changed, 1 added, 0 unreadable
}

// Example showing how to format sizes
func ExampleFormatSize() {
	fmt.Println(output.FormatSize(3 * 1024 * 1024))
	// Output: 3.0 MiB
}
