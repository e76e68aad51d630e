package config

// directiveScope restricts where a directive name may be used, grounded on
// original_source/include/Parser.hpp's g_directives table.
type directiveScope int

const (
	scopeServerOnly directiveScope = iota
	scopeLocationOnly
	scopeBoth
)

// directiveArity distinguishes directives that may appear at most once per
// block from ones that may repeat, accumulating values across occurrences.
type directiveArity int

const (
	arSingle directiveArity = iota
	arMulti
)

type directiveSpec struct {
	name  string
	scope directiveScope
	arity directiveArity
}

// directiveTable mirrors original_source/include/Parser.hpp's g_directives,
// minus the obsolete 'host' directive (spec.md §9: a canonical
// 'listen interface:port' replaces it).
var directiveTable = []directiveSpec{
	{"listen", scopeServerOnly, arMulti},
	{"server_name", scopeServerOnly, arMulti},
	{"error_page", scopeServerOnly, arMulti},

	{"return", scopeLocationOnly, arSingle},
	{"cgi_pass", scopeLocationOnly, arMulti},
	{"cgi_extension", scopeLocationOnly, arMulti},
	{"upload_store", scopeLocationOnly, arSingle},
	{"allowed_methods", scopeLocationOnly, arMulti},

	{"root", scopeBoth, arSingle},
	{"index", scopeBoth, arMulti},
	{"autoindex", scopeBoth, arSingle},
	{"client_max_body_size", scopeBoth, arSingle},
}

func findServerDirective(name string) *directiveSpec {
	for i := range directiveTable {
		d := &directiveTable[i]
		if d.name == name && (d.scope == scopeServerOnly || d.scope == scopeBoth) {
			return d
		}
	}
	return nil
}

func findLocationDirective(name string) *directiveSpec {
	for i := range directiveTable {
		d := &directiveTable[i]
		if d.name == name && (d.scope == scopeLocationOnly || d.scope == scopeBoth) {
			return d
		}
	}
	return nil
}
