package treebuild

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extensionMap maps file extensions to language names. Every listed file
// becomes a block; only languages with a grammar get structural children.
var extensionMap = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".jsx":  "tsx",
	".tsx":  "tsx",
	".go":   "go",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".cxx":  "cpp",
	".hpp":  "cpp",
	".hxx":  "cpp",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".md":   "markdown",
	".sh":   "bash",
	".bash": "bash",
	".sql":  "sql",
}

// ForExtension returns the language name for a file extension, or "" if
// the extension is not recognized.
func ForExtension(ext string) string {
	return extensionMap[strings.ToLower(ext)]
}

// grammar describes how to find blocks in one tree-sitter language.
type grammar struct {
	lang *sitter.Language

	functions map[string]bool // top-level function node types
	classes   map[string]bool // top-level class node types
	methods   map[string]bool // method node types inside a class body
	wrappers  map[string]bool // nodes whose "definition"/"declaration" field holds the real block

	decisions []string // node types adding one to cyclomatic complexity
	boolOps   []string // operator tokens counted inside binary/boolean expressions
	selfNames []string // leading parameters not counted (Python self/cls)
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

var jsDecisions = []string{
	"if_statement",
	"for_statement",
	"for_in_statement",
	"while_statement",
	"do_statement",
	"switch_case",
	"catch_clause",
	"ternary_expression",
	"binary_expression",
}

var grammars = map[string]*grammar{
	"python": {
		lang:      python.GetLanguage(),
		functions: set("function_definition"),
		classes:   set("class_definition"),
		methods:   set("function_definition"),
		wrappers:  set("decorated_definition"),
		decisions: []string{
			"if_statement",
			"elif_clause",
			"for_statement",
			"while_statement",
			"except_clause",
			"with_statement",
			"boolean_operator",
			"conditional_expression",
			"list_comprehension",
			"dictionary_comprehension",
			"set_comprehension",
			"generator_expression",
		},
		boolOps:   []string{"and", "or"},
		selfNames: []string{"self", "cls"},
	},
	"javascript": {
		lang:      javascript.GetLanguage(),
		functions: set("function_declaration", "generator_function_declaration"),
		classes:   set("class_declaration"),
		methods:   set("method_definition"),
		wrappers:  set("export_statement"),
		decisions: jsDecisions,
		boolOps:   []string{"&&", "||", "??"},
	},
	"typescript": {
		lang:      typescript.GetLanguage(),
		functions: set("function_declaration", "generator_function_declaration"),
		classes:   set("class_declaration", "abstract_class_declaration"),
		methods:   set("method_definition"),
		wrappers:  set("export_statement"),
		decisions: jsDecisions,
		boolOps:   []string{"&&", "||", "??"},
	},
	"tsx": {
		lang:      tsx.GetLanguage(),
		functions: set("function_declaration", "generator_function_declaration"),
		classes:   set("class_declaration", "abstract_class_declaration"),
		methods:   set("method_definition"),
		wrappers:  set("export_statement"),
		decisions: jsDecisions,
		boolOps:   []string{"&&", "||", "??"},
	},
	"go": {
		lang:      golang.GetLanguage(),
		functions: set("function_declaration", "method_declaration"),
		decisions: []string{
			"if_statement",
			"for_statement",
			"expression_case",
			"type_case",
			"communication_case",
			"binary_expression",
		},
		boolOps: []string{"&&", "||"},
	},
}

// Parseable reports whether blocks inside files of language can be found.
func Parseable(language string) bool {
	_, ok := grammars[language]
	return ok
}
