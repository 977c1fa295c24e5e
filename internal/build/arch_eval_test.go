package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/diag"
	"github.com/Benny93/pyxis-go/internal/symbols"
)

func evalTargets(f *fixture, v *symbols.Symbol) []*symbols.Symbol {
	var out []*symbols.Symbol
	for _, eval := range v.Variable.Evals {
		if sym := f.b.Graph.Get(eval.Target); sym != nil {
			out = append(out, sym)
		}
	}
	return out
}

func TestArchEval_ImportBinding(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := f.addFile("other.py", "def helper():\n    return 1\n")
	file := f.addFile("main.py", "import other\nfrom other import helper\n")

	f.build(file, diag.StageArchEval)

	t.Run("ModuleImportPointsAtTheFile", func(t *testing.T) {
		targets := evalTargets(f, f.only(file, "other"))
		require.Len(t, targets, 1)
		assert.Same(t, other, targets[0])
	})

	t.Run("FromImportPointsAtTheMember", func(t *testing.T) {
		targets := evalTargets(f, f.only(file, "helper"))
		require.Len(t, targets, 1)
		assert.Same(t, f.only(other, "helper"), targets[0])
	})

	t.Run("DependencyRecorded", func(t *testing.T) {
		_, ok := file.File.DependsOn[other.Path()]
		assert.True(t, ok)
		assert.Contains(t, f.b.Graph.Dependents(other.Path()), file.Path())
	})
}

func TestArchEval_RelativeImports(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	pkg := f.addPackage("shop", "")
	order := f.addFileIn(pkg, pkg.Path(), "order.py", "class Order:\n    pass\n")
	file := f.addFileIn(pkg, pkg.Path(), "cart.py", "from . import order\nfrom .order import Order\n")

	f.build(file, diag.StageArchEval)

	targets := evalTargets(f, f.only(file, "order"))
	require.Len(t, targets, 1)
	assert.Same(t, order, targets[0])

	targets = evalTargets(f, f.only(file, "Order"))
	require.Len(t, targets, 1)
	assert.Same(t, f.only(order, "Order"), targets[0])
}

func TestArchEval_UnresolvedImportDiagnostics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addFile("other.py", "x = 1\n")
	file := f.addFile("main.py", "from other import missing\nimport numpy\n")

	f.build(file, diag.StageArchEval)
	diags := f.doc(file).StageDiagnostics(diag.StageArchEval)

	require.Len(t, diags, 1, "workspace misses are reported, external packages are not")
	assert.Equal(t, diag.CodeUnresolvedImport, diags[0].Code)
	assert.Equal(t, diag.SeverityWarning, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "missing")
}

func TestArchEval_BaseClasses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base := f.addFile("base.py", "class Base:\n    pass\n")
	content := "import base\n\nclass Child(base.Base):\n    pass\n\nclass Broken(base.Gone):\n    pass\n"
	file := f.addFile("main.py", content)

	f.build(file, diag.StageArchEval)

	t.Run("ResolvedBaseIsLinked", func(t *testing.T) {
		child := f.only(file, "Child")
		require.Len(t, child.Class.Bases, 1)
		assert.Same(t, f.only(base, "Base"), f.b.Graph.Get(child.Class.Bases[0]))
	})

	t.Run("MissingBaseOnKnownModuleIsReported", func(t *testing.T) {
		assert.Empty(t, f.only(file, "Broken").Class.Bases)
		diags := f.doc(file).StageDiagnostics(diag.StageArchEval)
		require.Len(t, diags, 1)
		assert.Equal(t, diag.CodeBaseClassNotFound, diags[0].Code)
		assert.Contains(t, diags[0].Message, "base.Gone")
	})
}

func TestArchEval_UnknownInheritedModel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	known := f.addFile("known.py", "class Partner(Model):\n    _name = \"res.partner\"\n")
	file := f.addFile("ext.py", `class PartnerExt(Model):
    _inherit = ["res.partner", "res.ghost"]
`)

	f.build(known, diag.StageArch)
	f.build(file, diag.StageArchEval)
	diags := f.doc(file).StageDiagnostics(diag.StageArchEval)

	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeUnknownModel, diags[0].Code)
	assert.Contains(t, diags[0].Message, "res.ghost")
}

func TestArchEval_AssignmentEvaluations(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	file := f.addFile("mod.py", "class Cfg:\n    pass\n\nINSTANCE = Cfg()\nALIAS = Cfg\nCOUNT = 3\n")

	f.build(file, diag.StageArchEval)
	cls := f.only(file, "Cfg")

	inst := f.only(file, "INSTANCE").Variable.Evals
	require.Len(t, inst, 1)
	assert.Equal(t, symbols.EvalInstance, inst[0].Kind)
	assert.Equal(t, cls.ID, inst[0].Target)

	alias := f.only(file, "ALIAS").Variable.Evals
	require.Len(t, alias, 1)
	assert.Equal(t, symbols.EvalSymbol, alias[0].Kind)
	assert.Equal(t, cls.ID, alias[0].Target)

	count := f.only(file, "COUNT").Variable.Evals
	require.Len(t, count, 1)
	assert.Equal(t, symbols.EvalLiteral, count[0].Kind)
	assert.Equal(t, symbols.LitInt, count[0].Literal)
	assert.Equal(t, "3", count[0].Raw)
}
