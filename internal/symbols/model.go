// Package symbols implements the in-memory symbol graph.
//
// Symbols live in an arena owned by the Graph and reference each other
// by SymbolID. Parent-to-child edges through the nested declaration
// tables are the only owning edges; everything else (base classes,
// import targets, evaluation targets) is a weak reference that resolves
// to nil once the target has been evicted.
package symbols

import "fmt"

// Kind is the symbol node kind.
type Kind uint8

const (
	KindRoot Kind = iota
	KindPackage
	KindFile
	KindClass
	KindFunction
	KindVariable
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindPackage:
		return "package"
	case KindFile:
		return "file"
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	case KindVariable:
		return "variable"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// SymbolID is a stable arena handle. IDs are never reused within a
// session; resolving an evicted ID yields nil.
type SymbolID uint64

// NoSymbol is the zero SymbolID, used for absent references.
const NoSymbol SymbolID = 0

// Span is a half-open byte range [Start, End) into a file.
type Span struct {
	Start int
	End   int
}

// Contains reports whether the offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// Symbol is one node of the graph. Exactly one of the payload pointers
// matching Kind is non-nil.
type Symbol struct {
	// ID is the arena handle of this symbol.
	ID SymbolID

	// Kind is the node kind.
	Kind Kind

	// Name is the declared name: the file stem for files, the directory
	// name for packages.
	Name string

	// Paths holds the filesystem paths backing the symbol. Files carry
	// exactly one; packages carry their directory plus the __init__.py
	// when present; namespace packages may span several directories.
	// Paths must be set before the symbol is attached to a parent.
	Paths []string

	// Parent is a weak backreference to the owning symbol.
	Parent SymbolID

	// Range is the declaration range within the containing file. Body
	// is the scope range for classes and functions.
	Range Span
	Body  Span

	// File is set for files and packages, Class for classes, Function
	// for functions, Variable for variables.
	File     *FileData
	Class    *ClassData
	Function *FunctionData
	Variable *VariableData

	// children maps name to section to declarations in order. The
	// section index separates alternative declaration branches of the
	// same name.
	children map[string]map[int][]SymbolID
}

// Path returns the canonical filesystem path of a file or package
// symbol, or the empty string.
func (s *Symbol) Path() string {
	if len(s.Paths) == 0 {
		return ""
	}
	return s.Paths[0]
}

// IsScope reports whether the symbol opens a lexical scope.
func (s *Symbol) IsScope() bool {
	switch s.Kind {
	case KindFile, KindPackage, KindClass, KindFunction:
		return true
	}
	return false
}

// Doc returns the docstring of the symbol, if any.
func (s *Symbol) Doc() string {
	switch {
	case s.Class != nil:
		return s.Class.Doc
	case s.Function != nil:
		return s.Function.Doc
	case s.Variable != nil:
		return s.Variable.Doc
	}
	return ""
}

// FileData is the payload of file and package symbols.
type FileData struct {
	// Hash is the content hash of the last processed text.
	Hash uint64

	// Build statuses per pipeline stage. Syntax is owned by the source
	// tracker and has no status here.
	ArchStatus       BuildStatus
	ArchEvalStatus   BuildStatus
	ValidationStatus BuildStatus

	// DependsOn lists the canonical paths whose symbols this file's
	// evaluations reference.
	DependsOn map[string]struct{}

	evalCache map[Span][]Evaluation
}

// CachedEval returns the memoized evaluation for an expression span.
func (f *FileData) CachedEval(span Span) ([]Evaluation, bool) {
	evals, ok := f.evalCache[span]
	return evals, ok
}

// StoreEval memoizes the evaluation of an expression span.
func (f *FileData) StoreEval(span Span, evals []Evaluation) {
	if f.evalCache == nil {
		f.evalCache = make(map[Span][]Evaluation)
	}
	f.evalCache[span] = evals
}

// FlushEvalCache drops every memoized evaluation. Called whenever the
// file content hash changes.
func (f *FileData) FlushEvalCache() {
	f.evalCache = nil
}

// AddDependency records that this file references path.
func (f *FileData) AddDependency(path string) {
	if f.DependsOn == nil {
		f.DependsOn = make(map[string]struct{})
	}
	f.DependsOn[path] = struct{}{}
}

// ClassData is the payload of class symbols.
type ClassData struct {
	// Doc is the docstring.
	Doc string

	// Bases are weak references to the resolved base classes.
	Bases []SymbolID

	// Model is set when the class declares framework model metadata.
	Model *ModelData
}

// ModelData carries the declarative-model metadata read from class
// attributes.
type ModelData struct {
	Name              string
	Inherit           []string
	Table             string
	Order             string
	Description       string
	Abstract          bool
	Transient         bool
	FieldDependencies map[string][]string
}

// Names returns the model names this class declares or extends.
func (m *ModelData) Names() []string {
	var names []string
	if m.Name != "" {
		names = append(names, m.Name)
	}
	for _, n := range m.Inherit {
		if n != m.Name {
			names = append(names, n)
		}
	}
	return names
}

// ArgKind classifies a function parameter.
type ArgKind uint8

const (
	ArgPositionalOnly ArgKind = iota
	ArgNormal
	ArgVariadic
	ArgKeywordOnly
	ArgKeywordVariadic
)

// Arg is one function parameter in declaration order.
type Arg struct {
	Name       string
	Symbol     SymbolID
	Kind       ArgKind
	HasDefault bool
}

// FunctionData is the payload of function symbols.
type FunctionData struct {
	// Doc is the docstring.
	Doc string

	IsStatic      bool
	IsProperty    bool
	IsClassMethod bool

	// Args are the parameters in declaration order.
	Args []Arg

	// Returns accumulates the evaluated return candidates.
	Returns []Evaluation
}

// VariableData is the payload of variable symbols.
type VariableData struct {
	// Doc is an attached docstring comment, if any.
	Doc string

	// IsParameter marks function parameters.
	IsParameter bool

	// IsImport marks names introduced by an import statement.
	IsImport bool

	// Evals are the candidate interpretations of the declaration, in
	// the order the declaring branches were walked.
	Evals []Evaluation
}

// EvalKind discriminates an Evaluation.
type EvalKind uint8

const (
	// EvalLiteral is a literal constant.
	EvalLiteral EvalKind = iota

	// EvalSymbol references the target symbol itself: a class object, a
	// function, a module.
	EvalSymbol

	// EvalInstance denotes an instance of the target class.
	EvalInstance
)

// LiteralKind classifies literal evaluations.
type LiteralKind uint8

const (
	LitNone LiteralKind = iota
	LitBool
	LitInt
	LitFloat
	LitStr
	LitBytes
	LitList
	LitTuple
	LitDict
	LitSet
)

// String returns the Python-facing type name of the literal kind.
func (k LiteralKind) String() string {
	switch k {
	case LitNone:
		return "None"
	case LitBool:
		return "bool"
	case LitInt:
		return "int"
	case LitFloat:
		return "float"
	case LitStr:
		return "str"
	case LitBytes:
		return "bytes"
	case LitList:
		return "list"
	case LitTuple:
		return "tuple"
	case LitDict:
		return "dict"
	case LitSet:
		return "set"
	}
	return fmt.Sprintf("literal(%d)", uint8(k))
}

// Evaluation is one candidate interpretation of an expression or
// declaration: a literal constant, a reference to another symbol, or an
// instance of a class. Target is a weak reference resolved through the
// arena; Context carries values captured at evaluation time, such as a
// resolved relation name.
type Evaluation struct {
	Kind    EvalKind
	Literal LiteralKind
	Raw     string
	Target  SymbolID
	Context map[string]string
}

// LiteralEval builds a literal evaluation.
func LiteralEval(kind LiteralKind, raw string) Evaluation {
	return Evaluation{Kind: EvalLiteral, Literal: kind, Raw: raw}
}

// SymbolEval builds an evaluation referencing a symbol.
func SymbolEval(target SymbolID) Evaluation {
	return Evaluation{Kind: EvalSymbol, Target: target}
}

// InstanceEval builds an evaluation denoting an instance of a class.
func InstanceEval(target SymbolID) Evaluation {
	return Evaluation{Kind: EvalInstance, Target: target}
}
