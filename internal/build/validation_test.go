package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/pyxis-go/internal/diag"
)

func validationDiags(f *fixture, content string) []diag.Diagnostic {
	f.t.Helper()
	file := f.addFile("mod.py", content)
	f.build(file, diag.StageValidation)
	return f.doc(file).StageDiagnostics(diag.StageValidation)
}

func TestValidation_UndefinedName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := `def run():
    return missing_thing
`
	diags := validationDiags(f, content)

	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, diag.CodeUndefinedName, d.Code)
	assert.Equal(t, diag.SeverityError, d.Severity)
	assert.Equal(t, "undefined name missing_thing", d.Message)
	assert.Equal(t, offsetOf(t, content, "missing_thing"), d.Start)
	assert.Equal(t, d.Start+len("missing_thing"), d.End)
}

func TestValidation_ResolvedNamesAreClean(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.Empty(t, validationDiags(f, `import json

LIMIT = 10

class Svc:
    def run(self, size):
        local = size + LIMIT
        data = json.dumps(local)
        print(len(data))
        for item in [local]:
            sorted(item)
        try:
            pass
        except ValueError as exc:
            raise exc
        return self
`))
}

func TestValidation_OnlyFunctionBodiesAreChecked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.Empty(t, validationDiags(f, `TOP = also_missing

class C:
    attr = missing_here
`), "module and class level names are the arch-eval pass's business")
}

func TestValidation_ScopeChainSkipsClassScope(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := `class C:
    shadow = 1

    def m(self):
        return shadow
`
	diags := validationDiags(f, content)
	require.Len(t, diags, 1, "class attributes are not visible to method bodies as bare names")
	assert.Equal(t, "undefined name shadow", diags[0].Message)
}

func TestValidation_EscapeHatches(t *testing.T) {
	t.Parallel()

	t.Run("StarImportDisablesTheCheck", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.Empty(t, validationDiags(f, `from tools import *

def run():
    return whatever_star_brought
`))
	})

	t.Run("GlobalDeclaration", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.Empty(t, validationDiags(f, `def bump():
    global counter
    counter = counter + 1
    return counter
`))
	})

	t.Run("WalrusTarget", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.Empty(t, validationDiags(f, `def grab(items):
    if (head := len(items)) > 0:
        return head
    return 0
`))
	})

	t.Run("ComprehensionsAreSkipped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.Empty(t, validationDiags(f, `def squares(items):
    return [i * i for i in items]
`))
	})
}

func TestValidation_AttributeMissesStaySilent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.Empty(t, validationDiags(f, `class C:
    def m(self):
        return self.not_modelled_anywhere
`))
}

func TestValidation_RecordsDependenciesFromBodies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	models := f.addFile("models.py", `class SaleOrder(Model):
    _name = "sale.order"
`)
	f.build(models, diag.StageArch)

	file := f.addFile("logic.py", `def fetch(env):
    return env["sale.order"]
`)
	f.build(file, diag.StageValidation)

	_, ok := file.File.DependsOn[models.Path()]
	assert.True(t, ok, "a model reference in a body is a cross-file dependency")
	assert.Contains(t, f.b.Graph.Dependents(models.Path()), file.Path())
}

func TestValidation_TargetsLoadTheirObjects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	content := `def assign():
    ghost.attr = 1
`
	diags := validationDiags(f, content)
	require.Len(t, diags, 1)
	assert.Equal(t, "undefined name ghost", diags[0].Message)
}
