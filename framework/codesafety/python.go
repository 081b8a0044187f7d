package codesafety

import (
	"regexp"
	"sort"
	"strings"

	"github.com/go-python/gpython/ast"
	"github.com/go-python/gpython/parser"
)

// analyzePython walks the snippet's syntax tree. Imports are collected in a
// first pass so that calls appearing before an import (inside functions) still
// resolve through the alias table.
func (a *Analyzer) analyzePython(code string) []string {
	tree, err := parser.ParseString(code, "exec")
	if err != nil {
		// Snippets with syntax errors fail at execution time anyway, but the
		// parser lags the interpreter's grammar, so literal dangerous calls are
		// still caught textually.
		a.logger.Debug("python parse failed, falling back to text scan", "error", err)
		return scanPythonText(code)
	}
	s := &pyScope{aliases: map[string]string{}}
	ast.Walk(tree, s.collectImports)
	ast.Walk(tree, s.inspect)
	return s.ops.ops
}

// pyScope is the transient alias table of one analysis.
type pyScope struct {
	aliases map[string]string
	stars   []string
	ops     opSet
}

func (s *pyScope) collectImports(node ast.Ast) bool {
	switch n := node.(type) {
	case *ast.Import:
		for _, alias := range n.Names {
			name := identifier(alias.Name)
			if as := identifier(alias.AsName); as != "" {
				s.aliases[as] = name
				continue
			}
			// "import a.b" binds "a".
			root := strings.SplitN(name, ".", 2)[0]
			s.aliases[root] = root
		}
	case *ast.ImportFrom:
		module := identifier(n.Module)
		if module == "" {
			return true
		}
		for _, alias := range n.Names {
			name := identifier(alias.Name)
			if name == "*" {
				s.stars = append(s.stars, module)
				continue
			}
			local := name
			if as := identifier(alias.AsName); as != "" {
				local = as
			}
			s.aliases[local] = module + "." + name
		}
	}
	return true
}

func (s *pyScope) inspect(node ast.Ast) bool {
	switch n := node.(type) {
	case *ast.Call:
		s.inspectCall(n)
	case *ast.Assign:
		for _, target := range n.Targets {
			s.inspectTarget(target)
		}
	case *ast.AugAssign:
		s.inspectTarget(n.Target)
	}
	return true
}

func (s *pyScope) inspectTarget(target ast.Expr) {
	switch t := target.(type) {
	case *ast.Name:
		if isDunder(string(t.Id)) {
			s.ops.add("assignment to " + string(t.Id))
		}
	case *ast.Attribute:
		if isDunder(string(t.Attr)) {
			s.ops.add("assignment to " + string(t.Attr))
		}
	}
}

func (s *pyScope) inspectCall(call *ast.Call) {
	full, ok := s.resolve(call.Func)
	if !ok {
		return
	}
	dot := strings.LastIndex(full, ".")
	if dot < 0 {
		s.inspectBareCall(full, call)
		return
	}
	module, fn := full[:dot], full[dot+1:]
	if module == "builtins" {
		s.inspectBareCall(fn, call)
		return
	}
	if dangerousCalls[module][fn] {
		s.ops.add(full)
	}
}

// inspectBareCall handles names that were not bound by a plain import: star
// imports, builtins and write-mode open().
func (s *pyScope) inspectBareCall(name string, call *ast.Call) {
	for _, module := range s.stars {
		if dangerousCalls[module][name] {
			s.ops.add(module + "." + name)
			return
		}
	}
	if dangerousCalls["builtins"][name] {
		s.ops.add(name)
		return
	}
	if name == "open" && opensForWrite(call) {
		s.ops.add("open (write mode)")
	}
}

// resolve turns a call target into a dotted path rooted at the module the
// snippet imported it from.
func (s *pyScope) resolve(expr ast.Expr) (string, bool) {
	switch n := expr.(type) {
	case *ast.Name:
		name := string(n.Id)
		if full, ok := s.aliases[name]; ok {
			return full, true
		}
		return name, true
	case *ast.Attribute:
		prefix, ok := s.resolve(n.Value)
		if !ok {
			return "", false
		}
		return prefix + "." + string(n.Attr), true
	case *ast.Call:
		callee, ok := s.resolve(n.Func)
		if !ok {
			return "", false
		}
		if class, ok := pathConstructors[callee]; ok {
			return class, true
		}
	}
	return "", false
}

func opensForWrite(call *ast.Call) bool {
	var mode ast.Expr
	if len(call.Args) > 1 {
		mode = call.Args[1]
	}
	for _, kw := range call.Keywords {
		if identifier(kw.Arg) == "mode" {
			mode = kw.Value
		}
	}
	str, ok := mode.(*ast.Str)
	if !ok {
		return false
	}
	return strings.ContainsAny(string(str.S), "wax+")
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// identifier reads optional and required identifier fields alike.
func identifier(v interface{}) string {
	switch id := v.(type) {
	case ast.Identifier:
		return string(id)
	case *ast.Identifier:
		if id == nil {
			return ""
		}
		return string(*id)
	case string:
		return id
	}
	return ""
}

var (
	textPatterns []textPattern
	pyImport     = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([^\n#;]+)`)
	pyFromImport = regexp.MustCompile(`(?m)^[ \t]*from[ \t]+([\w.]+)[ \t]+import[ \t]*(\([^)]*\)|[^\n#;]+)`)
	pyImportName = regexp.MustCompile(`^([\w.]+|\*)(?:\s+as\s+(\w+))?$`)
)

type textPattern struct {
	op string
	re *regexp.Regexp
}

func init() {
	modules := make([]string, 0, len(dangerousCalls))
	for module := range dangerousCalls {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	for _, module := range modules {
		fns := make([]string, 0, len(dangerousCalls[module]))
		for fn := range dangerousCalls[module] {
			fns = append(fns, fn)
		}
		sort.Strings(fns)
		for _, fn := range fns {
			op := module + "." + fn
			textPatterns = append(textPatterns, textPattern{
				op: op,
				re: regexp.MustCompile(`\b` + regexp.QuoteMeta(op) + `\s*\(`),
			})
		}
	}
}

// scanPythonText is the conservative scan used when the snippet does not
// parse: it expands textual imports into qualified names and then looks for
// literal module.function( calls from the dangerous sets.
func scanPythonText(code string) []string {
	expanded := code
	for _, m := range pyImport.FindAllStringSubmatch(code, -1) {
		for _, name := range importNames(m[1]) {
			if name.local != name.target {
				expanded = replaceIdentifierCall(expanded, name.local, name.target)
			}
		}
	}
	for _, m := range pyFromImport.FindAllStringSubmatch(code, -1) {
		module := m[1]
		for _, name := range importNames(m[2]) {
			if name.target == "*" {
				for fn := range dangerousCalls[module] {
					expanded = replaceIdentifierCall(expanded, fn, module+"."+fn)
				}
				continue
			}
			expanded = replaceIdentifierCall(expanded, name.local, module+"."+name.target)
		}
	}
	var ops opSet
	for _, p := range textPatterns {
		if p.re.MatchString(expanded) {
			ops.add(p.op)
		}
	}
	return ops.ops
}

type importName struct {
	target string
	local  string
}

// importNames splits an import list such as "a, b as c" or "(a,\n b)".
func importNames(list string) []importName {
	list = strings.TrimSpace(list)
	list = strings.TrimSuffix(strings.TrimPrefix(list, "("), ")")
	var out []importName
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(item), "\\"))
		m := pyImportName.FindStringSubmatch(item)
		if m == nil {
			continue
		}
		name := importName{target: m[1], local: m[2]}
		if name.local == "" {
			name.local = name.target
		}
		out = append(out, name)
	}
	return out
}

// replaceIdentifierCall rewrites uses of local (as a call or attribute root)
// to target.
func replaceIdentifierCall(code, local, target string) string {
	re := regexp.MustCompile(`(^|[^\w.])` + regexp.QuoteMeta(local) + `(\s*[.(])`)
	return re.ReplaceAllString(code, "${1}"+target+"${2}")
}
