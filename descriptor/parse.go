package descriptor

import (
	"fmt"
	"strings"
	"unicode"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/errors"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokPunct
	tokArrow
	tokEOF
)

type token struct {
	text string
	line int
	kind tokenKind
}

// lex splits WIT source into identifiers, punctuation and arrows.
// Comments run from // to end of line.
func lex(src string) []token {
	var toks []token
	line := 1
	runes := []rune(src)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\n':
			line++
		case unicode.IsSpace(r):
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			i--
		case r == '-' && i+1 < len(runes) && runes[i+1] == '>':
			toks = append(toks, token{kind: tokArrow, text: "->", line: line})
			i++
		case isIdentStart(r):
			start := i
			for i+1 < len(runes) && isIdentPart(runes[i+1]) {
				if runes[i+1] == '-' && i+2 < len(runes) && runes[i+2] == '>' {
					break
				}
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[start : i+1]), line: line})
		default:
			toks = append(toks, token{kind: tokPunct, text: string(r), line: line})
		}
	}
	return append(toks, token{kind: tokEOF, line: line})
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '%' || r == '$'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) done() bool { return p.peek().kind == tokEOF }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.peek().line, fmt.Sprintf(format, args...))
}

func (p *parser) accept(text string) bool {
	if t := p.peek(); t.kind != tokEOF && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf("expected %q, found %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) ident() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", p.errorf("expected identifier, found %q", t.text)
	}
	p.pos++
	return strings.TrimPrefix(t.text, "%"), nil
}

// Parse parses WIT text containing an optional package declaration, any
// number of interfaces and exactly one world.
func Parse(src string) (*World, error) {
	w, err := parse(src)
	if err != nil {
		return nil, errors.ParseFailed("descriptor", err)
	}
	return w, nil
}

type worldItem struct {
	fn     *Func
	name   string
	export bool
}

func parse(src string) (*World, error) {
	p := &parser{toks: lex(src)}
	w := &World{interfaces: make(map[string]*Interface)}
	var items []worldItem
	seenWorld := false

	for !p.done() {
		kw, err := p.ident()
		if err != nil {
			return nil, err
		}
		switch kw {
		case "package":
			pkg, err := p.packageName()
			if err != nil {
				return nil, err
			}
			w.Package = pkg
		case "interface":
			iface, err := p.parseInterface()
			if err != nil {
				return nil, err
			}
			if _, dup := w.interfaces[iface.Name]; dup {
				return nil, fmt.Errorf("interface %q declared twice", iface.Name)
			}
			w.interfaces[iface.Name] = iface
		case "world":
			if seenWorld {
				return nil, p.errorf("only one world per descriptor")
			}
			seenWorld = true
			name, its, err := p.parseWorld()
			if err != nil {
				return nil, err
			}
			w.Name = name
			items = its
		default:
			return nil, p.errorf("unexpected %q", kw)
		}
	}

	if !seenWorld {
		return nil, fmt.Errorf("no world declared")
	}
	if err := w.resolve(items); err != nil {
		return nil, err
	}
	return w, nil
}

// packageName reads "ns:name@version" up to the terminating semicolon.
func (p *parser) packageName() (string, error) {
	var b strings.Builder
	for !p.done() && p.peek().text != ";" {
		b.WriteString(p.next().text)
	}
	if err := p.expect(";"); err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "", p.errorf("empty package name")
	}
	return b.String(), nil
}

func (p *parser) parseInterface() (*Interface, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	iface := &Interface{Name: name}
	for !p.accept("}") {
		if p.done() {
			return nil, p.errorf("unterminated interface %q", name)
		}
		fname, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		fn, err := p.parseFunc(fname)
		if err != nil {
			return nil, err
		}
		if iface.Func(fname) != nil {
			return nil, fmt.Errorf("function %q declared twice in interface %q", fname, name)
		}
		iface.Funcs = append(iface.Funcs, fn)
	}
	return iface, nil
}

func (p *parser) parseWorld() (string, []worldItem, error) {
	name, err := p.ident()
	if err != nil {
		return "", nil, err
	}
	if err := p.expect("{"); err != nil {
		return "", nil, err
	}
	var items []worldItem
	for !p.accept("}") {
		if p.done() {
			return "", nil, p.errorf("unterminated world %q", name)
		}
		kw, err := p.ident()
		if err != nil {
			return "", nil, err
		}
		if kw != "import" && kw != "export" {
			return "", nil, p.errorf("unsupported world item %q", kw)
		}
		item := worldItem{export: kw == "export"}
		if item.name, err = p.ident(); err != nil {
			return "", nil, err
		}
		if p.accept(":") {
			if item.fn, err = p.parseFunc(item.name); err != nil {
				return "", nil, err
			}
		} else if err := p.expect(";"); err != nil {
			return "", nil, err
		}
		items = append(items, item)
	}
	return name, items, nil
}

// parseFunc parses "func(a: T, ...) [-> R];" after the "name:" prefix.
func (p *parser) parseFunc(name string) (*Func, error) {
	if err := p.expect("func"); err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	fn := &Func{Name: name}
	for !p.accept(")") {
		if len(fn.Params) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		pname, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, Param{Name: pname, Type: t})
	}
	if p.peek().kind == tokArrow {
		p.next()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Result = t
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	return fn, nil
}

func (p *parser) parseType() (wit.Type, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if ctor, ok := primitives[name]; ok {
		return ctor(), nil
	}

	switch name {
	case "option", "list":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		inner, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		if name == "option" {
			if td, ok := inner.(*wit.TypeDef); ok {
				if _, nested := td.Kind.(*wit.Option); nested {
					return nil, p.errorf("nested option is not supported")
				}
			}
			return Option(inner), nil
		}
		return List(inner), nil

	case "result":
		if !p.accept("<") {
			return Result(nil, nil), nil
		}
		ok, err := p.parseResultSide()
		if err != nil {
			return nil, err
		}
		var errType wit.Type
		if p.accept(",") {
			if errType, err = p.parseResultSide(); err != nil {
				return nil, err
			}
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		return Result(ok, errType), nil
	}

	return nil, fmt.Errorf("unknown type %q", name)
}

func (p *parser) parseResultSide() (wit.Type, error) {
	if p.accept("_") {
		return nil, nil
	}
	return p.parseType()
}

// resolve binds world items to declared interfaces and assigns core names.
func (w *World) resolve(items []worldItem) error {
	root := &Interface{Name: RootModule, Module: RootModule}
	rootAdded := false
	seenImport := make(map[string]bool)
	seenExport := make(map[string]bool)

	for _, it := range items {
		switch {
		case !it.export && it.fn != nil:
			if root.Func(it.name) != nil {
				return fmt.Errorf("import %q declared twice", it.name)
			}
			root.Funcs = append(root.Funcs, it.fn)
			if !rootAdded {
				w.Imports = append(w.Imports, root)
				rootAdded = true
			}

		case !it.export:
			iface := w.interfaces[it.name]
			if iface == nil {
				return fmt.Errorf("import of undeclared interface %q", it.name)
			}
			if seenImport[it.name] {
				return fmt.Errorf("interface %q imported twice", it.name)
			}
			seenImport[it.name] = true
			iface.Module = w.qualify(iface.Name)
			w.Imports = append(w.Imports, iface)

		case it.fn != nil:
			if seenExport[it.name] {
				return fmt.Errorf("export %q declared twice", it.name)
			}
			seenExport[it.name] = true
			w.Exports = append(w.Exports, &Export{Name: it.name, Func: it.fn})

		default:
			iface := w.interfaces[it.name]
			if iface == nil {
				return fmt.Errorf("export of undeclared interface %q", it.name)
			}
			for _, fn := range iface.Funcs {
				core := w.qualify(iface.Name) + "#" + fn.Name
				if seenExport[core] {
					return fmt.Errorf("export %q declared twice", core)
				}
				seenExport[core] = true
				w.Exports = append(w.Exports, &Export{Name: core, Func: fn, Interface: iface.Name})
			}
		}
	}
	return nil
}

func (w *World) qualify(iface string) string {
	if w.Package == "" {
		return iface
	}
	pkg, version, hasVersion := strings.Cut(w.Package, "@")
	if hasVersion {
		return pkg + "/" + iface + "@" + version
	}
	return pkg + "/" + iface
}
