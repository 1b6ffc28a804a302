package tree

import (
	"slices"
	"strings"
)

// PlainText is the classifier verdict for content with no known language.
const PlainText = "text_plain"

// languages are the editor modes the classifier can return.
var languages = []string{
	"abap", "abc", "actionscript", "ada", "apache_conf", "apex", "applescript",
	"asciidoc", "asl", "assembly_x86", "autohotkey", "batchfile", "bro",
	"c9search", "cirru", "clojure", "cobol", "coffee", "coldfusion", "csharp",
	"csound_document", "csound_orchestra", "csound_score", "csp", "css", "curly",
	"dart", "diff", "django", "dockerfile", "dot", "drools", "edifact", "eiffel",
	"ejs", "elixir", "elm", "erlang", "forth", "fortran", "fsharp", "fsl", "ftl",
	"gcode", "gherkin", "gitignore", "glsl", "gobstones", "golang",
	"graphqlschema", "groovy", "haml", "handlebars", "haskell", "haskell_cabal",
	"haxe", "hjson", "html", "html_elixir", "html_ruby", "ini", "io", "jack",
	"jade", "java", "javascript", "json", "jsoniq", "jsp", "jssm", "jsx", "julia",
	"kotlin", "latex", "less", "liquid", "lisp", "livescript", "logiql",
	"logtalk", "lsl", "lua", "luapage", "lucene", "makefile", "markdown", "mask",
	"matlab", "maze", "mel", "mixal", "mushcode", "mysql", "nix", "nsis",
	"objectivec", "ocaml", "pascal", "perl", "perl6", "pgsql",
	"php", "php_laravel_blade", "pig", "plain_text", "powershell", "praat",
	"prolog", "properties", "protobuf", "puppet", "python", "razor", "rdoc",
	"red", "redshift", "rhtml", "rst", "ruby", "rust", "sass", "scad", "scala",
	"scheme", "scss", "sh", "sjs", "slim", "smarty", "snippets", "soy_template",
	"space", "sparql", "sql", "sqlserver", "stylus", "svg", "swift", "tcl",
	"terraform", "tex", "text", "textile", "toml", "tsx", "turtle", "twig",
	"typescript", "vala", "vbscript", "velocity", "verilog", "vhdl",
	"visualforce", "wollok", "xml", "xquery", "yaml",
}

var (
	cMimes = []string{"text/x-c", "text/x-csrc", "text/x-cpp", "text/x-cppsrc",
		"text/x-cxx", "text/x-cxxsrc", "text/x-c++", "text/x-c++src", "text/x-chdr"}
	rMimes = []string{"text/x-r", "text/x-rsrc"}
	dMimes = []string{"text/x-d", "text/x-dsrc"}
)

var normalizer = strings.NewReplacer("_", "-", "/", "-", "\\", "-", ".", "-")

func normalizeMode(s string) string {
	s = strings.ToLower(s)
	// Strip the type family so that e.g. "audio" does not match "io".
	for _, prefix := range []string{"text/", "application/", "audio/"} {
		s = strings.Replace(s, prefix, "", 1)
	}
	return normalizer.Replace(s)
}

// ModeForMime classifies a MIME type into an editor language mode.
// It returns PlainText when nothing matches.
func ModeForMime(mime string) string {
	switch {
	case slices.Contains(cMimes, mime):
		return "c_cpp"
	case slices.Contains(rMimes, mime):
		return "r"
	case slices.Contains(dMimes, mime):
		return "d"
	}
	if mime == "" {
		return PlainText
	}

	m := normalizeMode(mime)
	direct := ""
	for _, l := range languages {
		if strings.Contains(m, normalizeMode(l)) && len(l) > len(direct) {
			direct = l
		}
	}
	if direct != "" {
		return direct
	}
	for _, l := range languages {
		for _, part := range strings.Split(normalizeMode(l), "-") {
			if strings.Contains(m, part) {
				return l
			}
		}
	}
	return PlainText
}

// IsTextKind reports whether a kind is editable text: a text/ MIME type or
// one the language classifier recognizes.
func IsTextKind(kind string) bool {
	if kind == DirKind || kind == "" {
		return false
	}
	return strings.HasPrefix(kind, "text") || ModeForMime(kind) != PlainText
}
