package collector

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
)

// DocDirective marks a comment line as documentation for the declaration it
// is attached to:
//
//	//doc: Class representing the ball in the game.
//	type Ball struct {
//		Speed float64 `doc:"current velocity magnitude"`
//	}
//
//	//doc: Launches the ball with an initial upward velocity.
//	func (b *Ball) Launch() {}
//
// Only types carrying the directive are collected. Their methods and struct
// fields are collected when they carry the directive (fields may use the doc
// struct tag instead).
const DocDirective = "//doc:"

// GoSource collects annotated types from Go source trees. Identities are the
// package directory relative to the root, dot-separated, followed by the
// type name; a type in the root directory is qualified by its package name.
// With more than one root every identity is further prefixed by the root's
// label: its base name, extended by parent directories until the labels of
// all roots differ.
type GoSource struct {
	Roots        []string
	IncludeTests bool
}

func (s GoSource) Name() string {
	return "go"
}

func (s GoSource) Collect(ctx context.Context) ([]docindex.Entity, error) {
	roots := uniqueRoots(s.Roots)
	labels := rootLabels(roots)
	var out []docindex.Entity
	for i, root := range roots {
		dirs, err := s.packageDirs(root)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entities, err := parseDir(root, labels[i], dir.path, dir.files)
			if err != nil {
				return nil, err
			}
			out = append(out, entities...)
		}
	}
	return out, nil
}

type pkgDir struct {
	path  string
	files []string
}

// packageDirs lists directories under root holding Go files, in lexical
// order, skipping vendor, testdata and hidden directories.
func (s GoSource) packageDirs(root string) ([]pkgDir, error) {
	byDir := map[string][]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		if !s.IncludeTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	dirs := make([]pkgDir, 0, len(byDir))
	for dir, files := range byDir {
		sort.Strings(files)
		dirs = append(dirs, pkgDir{path: dir, files: files})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].path < dirs[j].path })
	return dirs, nil
}

type docType struct {
	entity docindex.Entity
	fields []docindex.Member
}

// parseDir collects the annotated types of one package directory. Methods
// may live in a different file from their receiver type, so members are
// attached only after every file has been read.
func parseDir(root, label, dir string, files []string) ([]docindex.Entity, error) {
	fset := token.NewFileSet()
	var (
		order   []string
		byName  = map[string]*docType{}
		methods = map[string][]docindex.Member{}
		pkgName string
	)

	for _, path := range files {
		file, err := parser.ParseFile(fset, path, nil, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if pkgName == "" {
			pkgName = file.Name.Name
		}
		ns := namespaceFor(root, label, dir, pkgName)

		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.GenDecl:
				if d.Tok != token.TYPE {
					continue
				}
				for _, spec := range d.Specs {
					ts := spec.(*ast.TypeSpec)
					doc := ts.Doc
					if doc == nil && len(d.Specs) == 1 {
						doc = d.Doc
					}
					desc, ok := directive(doc)
					if !ok {
						continue
					}
					name := ts.Name.Name
					t := &docType{entity: docindex.Entity{
						ID:          ns + "." + name,
						Name:        name,
						Namespace:   ns,
						Description: desc,
						Source:      sourceRef(root, fset.Position(ts.Pos())),
					}}
					if st, ok := ts.Type.(*ast.StructType); ok {
						t.fields = structFields(st)
					}
					byName[name] = t
					order = append(order, name)
				}
			case *ast.FuncDecl:
				if d.Recv == nil || len(d.Recv.List) == 0 {
					continue
				}
				desc, ok := directive(d.Doc)
				if !ok {
					continue
				}
				recv := receiverName(d.Recv.List[0].Type)
				methods[recv] = append(methods[recv], docindex.Member{
					Kind:        docindex.KindMethod,
					Name:        d.Name.Name,
					Description: desc,
				})
			}
		}
	}

	out := make([]docindex.Entity, 0, len(order))
	for _, name := range order {
		t := byName[name]
		t.entity.Members = append(append(t.entity.Members, methods[name]...), t.fields...)
		out = append(out, t.entity)
	}
	return out, nil
}

func namespaceFor(root, label, dir, pkgName string) string {
	ns := pkgName
	if rel, err := filepath.Rel(root, dir); err == nil && rel != "." {
		ns = strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
	}
	if label == "" {
		return ns
	}
	return label + "." + ns
}

// uniqueRoots cleans roots and drops repeats, keeping first occurrences.
func uniqueRoots(roots []string) []string {
	seen := make(map[string]bool, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		key := filepath.Clean(r)
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, filepath.Clean(r))
	}
	return out
}

// rootLabels names each root by its shortest distinct trailing path, joined
// with dots. A single root needs no label.
func rootLabels(roots []string) []string {
	labels := make([]string, len(roots))
	if len(roots) < 2 {
		return labels
	}
	segs := make([][]string, len(roots))
	depth := make([]int, len(roots))
	for i, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		for _, p := range strings.Split(filepath.ToSlash(r), "/") {
			if p != "" {
				segs[i] = append(segs[i], p)
			}
		}
		depth[i] = 1
	}
	label := func(i int) string {
		n := min(depth[i], len(segs[i]))
		return strings.Join(segs[i][len(segs[i])-n:], ".")
	}
	for {
		byLabel := map[string][]int{}
		for i := range roots {
			labels[i] = label(i)
			byLabel[labels[i]] = append(byLabel[labels[i]], i)
		}
		grew := false
		for _, idx := range byLabel {
			if len(idx) < 2 {
				continue
			}
			for _, i := range idx {
				if depth[i] < len(segs[i]) {
					depth[i]++
					grew = true
				}
			}
		}
		if !grew {
			return labels
		}
	}
}

func sourceRef(root string, pos token.Position) string {
	file := pos.Filename
	if rel, err := filepath.Rel(root, file); err == nil {
		file = filepath.ToSlash(rel)
	}
	return file + ":" + strconv.Itoa(pos.Line)
}

// directive joins the text of every doc directive line in cg.
func directive(cg *ast.CommentGroup) (string, bool) {
	if cg == nil {
		return "", false
	}
	var parts []string
	found := false
	for _, c := range cg.List {
		if text, ok := strings.CutPrefix(c.Text, DocDirective); ok {
			found = true
			if text = strings.TrimSpace(text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " "), found
}

func structFields(st *ast.StructType) []docindex.Member {
	var out []docindex.Member
	for _, field := range st.Fields.List {
		desc, ok := fieldDoc(field)
		if !ok {
			continue
		}
		names := make([]string, 0, len(field.Names))
		for _, name := range field.Names {
			names = append(names, name.Name)
		}
		if len(names) == 0 {
			// Embedded fields are named after their type.
			if name := receiverName(field.Type); name != "" {
				names = append(names, name)
			}
		}
		for _, name := range names {
			out = append(out, docindex.Member{
				Kind:        docindex.KindProperty,
				Name:        name,
				Description: desc,
			})
		}
	}
	return out
}

// fieldDoc prefers the doc struct tag, then a directive above the field,
// then a trailing directive comment.
func fieldDoc(field *ast.Field) (string, bool) {
	if field.Tag != nil {
		if raw, err := strconv.Unquote(field.Tag.Value); err == nil {
			if desc, ok := reflect.StructTag(raw).Lookup("doc"); ok {
				return desc, true
			}
		}
	}
	if desc, ok := directive(field.Doc); ok {
		return desc, true
	}
	return directive(field.Comment)
}

// receiverName is the bare type name of a receiver or embedded field type.
func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return ""
	}
}
