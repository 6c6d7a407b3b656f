package formula

import (
	"testing"

	"configforge/testutil"
)

func TestFormulaStaysLeaf(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Module, "the evaluator must not depend on store or shells")
}
