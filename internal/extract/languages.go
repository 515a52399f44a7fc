package extract

import (
	"unsafe"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// language describes one grammar and the patterns that pull declarations
// out of it. Every pattern captures the declaration as @<item type> and
// its identifier as @<item type>.name; Go methods also capture
// @method.receiver. Patterns compile independently so one that the
// grammar rejects only disables itself.
type language struct {
	name       string
	extensions []string
	grammar    func() unsafe.Pointer
	patterns   []string
}

var languages = []language{
	{
		name:       "go",
		extensions: []string{".go"},
		grammar:    tree_sitter_go.Language,
		patterns: []string{
			`(function_declaration name: (identifier) @function.name) @function`,
			`(method_declaration receiver: (parameter_list) @method.receiver name: (field_identifier) @method.name) @method`,
			`(type_spec name: (type_identifier) @class.name type: (struct_type)) @class`,
			`(type_spec name: (type_identifier) @interface.name type: (interface_type)) @interface`,
			`(field_declaration name: (field_identifier) @property.name) @property`,
			`(source_file (var_declaration (var_spec name: (identifier) @variable.name) @variable))`,
			`(source_file (const_declaration (const_spec name: (identifier) @variable.name) @variable))`,
		},
	},
	{
		name:       "typescript",
		extensions: []string{".ts", ".mts", ".cts"},
		grammar:    tree_sitter_typescript.LanguageTypescript,
		patterns:   typescriptPatterns,
	},
	{
		name:       "tsx",
		extensions: []string{".tsx"},
		grammar:    tree_sitter_typescript.LanguageTSX,
		patterns:   typescriptPatterns,
	},
	{
		name:       "javascript",
		extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		grammar:    tree_sitter_javascript.Language,
		patterns: []string{
			`(function_declaration name: (identifier) @function.name) @function`,
			`(generator_function_declaration name: (identifier) @function.name) @function`,
			`(variable_declarator name: (identifier) @function.name value: [(arrow_function) (function_expression)]) @function`,
			`(method_definition name: (property_identifier) @method.name) @method`,
			`(class_declaration name: (identifier) @class.name) @class`,
			`(field_definition property: (property_identifier) @property.name) @property`,
			`(program (lexical_declaration (variable_declarator name: (identifier) @variable.name) @variable))`,
			`(program (export_statement (lexical_declaration (variable_declarator name: (identifier) @variable.name) @variable)))`,
		},
	},
	{
		name:       "python",
		extensions: []string{".py", ".pyi"},
		grammar:    tree_sitter_python.Language,
		patterns: []string{
			`(function_definition name: (identifier) @function.name) @function`,
			`(class_definition name: (identifier) @class.name) @class`,
			`(module (expression_statement (assignment left: (identifier) @variable.name)) @variable)`,
		},
	},
	{
		name:       "rust",
		extensions: []string{".rs"},
		grammar:    tree_sitter_rust.Language,
		patterns: []string{
			`(function_item name: (identifier) @function.name) @function`,
			`(struct_item name: (type_identifier) @class.name) @class`,
			`(enum_item name: (type_identifier) @enum.name) @enum`,
			`(trait_item name: (type_identifier) @interface.name) @interface`,
			`(field_declaration name: (field_identifier) @property.name) @property`,
			`(const_item name: (identifier) @variable.name) @variable`,
			`(static_item name: (identifier) @variable.name) @variable`,
		},
	},
	{
		name:       "java",
		extensions: []string{".java"},
		grammar:    tree_sitter_java.Language,
		patterns: []string{
			`(method_declaration name: (identifier) @method.name) @method`,
			`(constructor_declaration name: (identifier) @method.name) @method`,
			`(class_declaration name: (identifier) @class.name) @class`,
			`(record_declaration name: (identifier) @class.name) @class`,
			`(interface_declaration name: (identifier) @interface.name) @interface`,
			`(enum_declaration name: (identifier) @enum.name) @enum`,
			`(field_declaration declarator: (variable_declarator name: (identifier) @property.name)) @property`,
		},
	},
	{
		name:       "csharp",
		extensions: []string{".cs"},
		grammar:    tree_sitter_csharp.Language,
		patterns: []string{
			`(method_declaration name: (identifier) @method.name) @method`,
			`(constructor_declaration name: (identifier) @method.name) @method`,
			`(class_declaration name: (identifier) @class.name) @class`,
			`(struct_declaration name: (identifier) @class.name) @class`,
			`(record_declaration name: (identifier) @class.name) @class`,
			`(interface_declaration name: (identifier) @interface.name) @interface`,
			`(enum_declaration name: (identifier) @enum.name) @enum`,
			`(property_declaration name: (identifier) @property.name) @property`,
			`(field_declaration (variable_declaration (variable_declarator (identifier) @property.name))) @property`,
		},
	},
	{
		name:       "cpp",
		extensions: []string{".cpp", ".cc", ".cxx", ".c", ".h", ".hpp", ".hh"},
		grammar:    tree_sitter_cpp.Language,
		patterns: []string{
			`(function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function`,
			`(function_definition declarator: (function_declarator declarator: (field_identifier) @method.name)) @method`,
			`(function_definition declarator: (function_declarator declarator: (qualified_identifier name: (identifier) @method.name))) @method`,
			`(class_specifier name: (type_identifier) @class.name) @class`,
			`(struct_specifier name: (type_identifier) @class.name) @class`,
			`(enum_specifier name: (type_identifier) @enum.name) @enum`,
			`(field_declaration declarator: (field_identifier) @property.name) @property`,
		},
	},
	{
		name:       "php",
		extensions: []string{".php", ".phtml"},
		grammar:    tree_sitter_php.LanguagePHP,
		patterns: []string{
			`(class_declaration name: (name) @class.name) @class`,
			`(interface_declaration name: (name) @interface.name) @interface`,
			`(trait_declaration name: (name) @class.name) @class`,
			`(enum_declaration name: (name) @enum.name) @enum`,
			`(function_definition name: (name) @function.name) @function`,
			`(method_declaration name: (name) @method.name) @method`,
			`(property_declaration (property_element (variable_name (name) @property.name))) @property`,
		},
	},
	{
		name:       "zig",
		extensions: []string{".zig"},
		grammar:    tree_sitter_zig.Language,
		patterns: []string{
			`(function_declaration (identifier) @function.name) @function`,
			`(variable_declaration (identifier) @class.name (struct_declaration)) @class`,
			`(variable_declaration (identifier) @class.name (union_declaration)) @class`,
			`(variable_declaration (identifier) @enum.name (enum_declaration)) @enum`,
		},
	},
}

var typescriptPatterns = []string{
	`(function_declaration name: (identifier) @function.name) @function`,
	`(generator_function_declaration name: (identifier) @function.name) @function`,
	`(variable_declarator name: (identifier) @function.name value: [(arrow_function) (function_expression)]) @function`,
	`(method_definition name: (property_identifier) @method.name) @method`,
	`(method_signature name: (property_identifier) @method.name) @method`,
	`(class_declaration name: (type_identifier) @class.name) @class`,
	`(abstract_class_declaration name: (type_identifier) @class.name) @class`,
	`(interface_declaration name: (type_identifier) @interface.name) @interface`,
	`(enum_declaration name: (identifier) @enum.name) @enum`,
	`(public_field_definition name: (property_identifier) @property.name) @property`,
	`(property_signature name: (property_identifier) @property.name) @property`,
	`(program (lexical_declaration (variable_declarator name: (identifier) @variable.name) @variable))`,
	`(program (export_statement (lexical_declaration (variable_declarator name: (identifier) @variable.name) @variable)))`,
}

// containerKinds maps node kinds that enclose members to the field
// holding their name.
var containerKinds = map[string]string{
	"class_declaration":          "name",
	"abstract_class_declaration": "name",
	"class_definition":           "name",
	"interface_declaration":      "name",
	"enum_declaration":           "name",
	"struct_declaration":         "name",
	"record_declaration":         "name",
	"trait_declaration":          "name",
	"trait_item":                 "name",
	"struct_item":                "name",
	"impl_item":                  "type",
	"class_specifier":            "name",
	"struct_specifier":           "name",
	"type_spec":                  "name",
}

// sourceLanguage returns the language registered for ext.
func sourceLanguage(ext string) (*language, bool) {
	for i := range languages {
		for _, e := range languages[i].extensions {
			if e == ext {
				return &languages[i], true
			}
		}
	}
	return nil, false
}
