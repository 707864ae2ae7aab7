// Package lang maps filename extensions to language labels. The table is
// process-wide read-only state, built once at init and never mutated.
package lang

import (
	"sort"
	"strings"
)

type Category string

const (
	Programming Category = "programming"
	Prose       Category = "prose"
)

// Language is a resolved label plus its category.
type Language struct {
	Name     string
	Category Category
}

// Default is what creation paths fall back to when a filename has no
// mapped extension.
var Default = Language{Name: "text", Category: Prose}

var byExtension map[string]Language

func init() {
	byExtension = make(map[string]Language, len(table))
	for _, e := range table {
		for _, ext := range e.exts {
			byExtension[ext] = Language{Name: e.name, Category: e.cat}
		}
	}
}

type entry struct {
	name string
	cat  Category
	exts []string
}

var table = []entry{
	{"Go", Programming, []string{"go"}},
	{"Python", Programming, []string{"py", "pyw"}},
	{"JavaScript", Programming, []string{"js", "mjs", "cjs", "jsx"}},
	{"TypeScript", Programming, []string{"ts", "tsx"}},
	{"Ruby", Programming, []string{"rb", "rake"}},
	{"Rust", Programming, []string{"rs"}},
	{"C", Programming, []string{"c", "h"}},
	{"C++", Programming, []string{"cpp", "cc", "cxx", "hpp", "hh"}},
	{"C#", Programming, []string{"cs"}},
	{"Java", Programming, []string{"java"}},
	{"Kotlin", Programming, []string{"kt", "kts"}},
	{"Swift", Programming, []string{"swift"}},
	{"Objective-C", Programming, []string{"m"}},
	{"PHP", Programming, []string{"php"}},
	{"Perl", Programming, []string{"pl", "pm"}},
	{"Lua", Programming, []string{"lua"}},
	{"Shell", Programming, []string{"sh", "bash", "zsh"}},
	{"PowerShell", Programming, []string{"ps1", "psm1"}},
	{"SQL", Programming, []string{"sql"}},
	{"R", Programming, []string{"r"}},
	{"Scala", Programming, []string{"scala"}},
	{"Clojure", Programming, []string{"clj", "cljs"}},
	{"Elixir", Programming, []string{"ex", "exs"}},
	{"Erlang", Programming, []string{"erl", "hrl"}},
	{"Haskell", Programming, []string{"hs"}},
	{"OCaml", Programming, []string{"ml", "mli"}},
	{"Dart", Programming, []string{"dart"}},
	{"Zig", Programming, []string{"zig"}},
	{"Vim Script", Programming, []string{"vim"}},
	{"Assembly", Programming, []string{"asm", "s"}},
	{"HTML", Programming, []string{"html", "htm"}},
	{"CSS", Programming, []string{"css"}},
	{"SCSS", Programming, []string{"scss"}},
	{"Less", Programming, []string{"less"}},
	{"Vue", Programming, []string{"vue"}},
	{"Svelte", Programming, []string{"svelte"}},
	{"Dockerfile", Programming, []string{"dockerfile", "containerfile"}},
	{"Makefile", Programming, []string{"mk", "makefile"}},
	{"GraphQL", Programming, []string{"graphql", "gql"}},
	{"Protocol Buffer", Programming, []string{"proto"}},
	{"Terraform", Programming, []string{"tf", "tfvars"}},
	{"Groovy", Programming, []string{"groovy", "gradle"}},

	{"text", Prose, []string{"txt", "text"}},
	{"Markdown", Prose, []string{"md", "markdown", "mdown"}},
	{"reStructuredText", Prose, []string{"rst"}},
	{"Org", Prose, []string{"org"}},
	{"AsciiDoc", Prose, []string{"adoc", "asciidoc"}},
	{"TeX", Prose, []string{"tex", "sty"}},
	{"JSON", Prose, []string{"json", "jsonc"}},
	{"YAML", Prose, []string{"yaml", "yml"}},
	{"TOML", Prose, []string{"toml"}},
	{"INI", Prose, []string{"ini", "cfg", "conf"}},
	{"XML", Prose, []string{"xml", "xsd", "xsl"}},
	{"CSV", Prose, []string{"csv", "tsv"}},
	{"Diff", Prose, []string{"diff", "patch"}},
	{"Log", Prose, []string{"log"}},
	{"Env", Prose, []string{"env"}},
	{"Git Config", Prose, []string{"gitignore", "gitattributes", "gitconfig"}},
}

// Resolve looks up the substring after the final '.' in filename. It
// returns false for an empty filename, a missing extension or an unmapped
// one; callers on the creation path substitute Default.
func Resolve(filename string) (Language, bool) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Language{}, false
	}
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return Language{}, false
	}
	l, ok := byExtension[strings.ToLower(filename[idx+1:])]
	return l, ok
}

// Lookup resolves a bare extension, no filename parsing.
func Lookup(ext string) (Language, bool) {
	l, ok := byExtension[strings.ToLower(ext)]
	return l, ok
}

// Extensions returns the sorted list of mapped extensions; the boundary
// exposes it so editors can populate pickers.
func Extensions() []string {
	out := make([]string, 0, len(byExtension))
	for ext := range byExtension {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
