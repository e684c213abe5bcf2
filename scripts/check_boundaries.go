package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "governor"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule constrains what a service layer may import. Paths in allow are
// relative to the service root unless they contain a dot (third-party).
type layerRule struct {
	allow          []string
	denyAdapters   bool
	denyPlatform   bool
	restrictThirdP bool
}

var layerRules = map[string]layerRule{
	"domain": {
		allow:          []string{"domain", "github.com/holiman/uint256"},
		denyAdapters:   true,
		denyPlatform:   true,
		restrictThirdP: true,
	},
	"ports": {
		allow:          []string{"domain", "github.com/holiman/uint256"},
		denyAdapters:   true,
		denyPlatform:   true,
		restrictThirdP: true,
	},
	"application": {
		allow:          []string{"application", "domain", "ports", "github.com/holiman/uint256", "github.com/google/uuid"},
		denyAdapters:   true,
		denyPlatform:   true,
		restrictThirdP: true,
	},
	"transport": {
		allow:          []string{"transport"},
		denyAdapters:   true,
		denyPlatform:   true,
		restrictThirdP: true,
	},
	"adapters": {
		denyPlatform: true,
	},
}

func main() {
	root := flag.String("root", "contexts", "directory holding bounded contexts")
	flag.Parse()

	violations := collectViolations(*root)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		// contexts/<context>/<service>/<layer>/...
		if len(parts) < 4 {
			return nil
		}
		serviceRoot := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		layer := parts[3]
		if strings.HasSuffix(layer, ".go") {
			layer = ""
		}
		violations = append(violations, checkFile(path, normalized, layer, serviceRoot)...)
		return nil
	})
	return violations
}

func checkFile(path string, normalized string, layer string, serviceRoot string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalized, Line: 1, Rule: "file must parse"}}
	}

	rule, constrained := layerRules[layer]
	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		report := func(msg string) {
			violations = append(violations, violation{
				File:   normalized,
				Line:   fset.Position(imp.Pos()).Line,
				Import: importPath,
				Rule:   msg,
			})
		}

		if strings.HasPrefix(importPath, modulePath+"/contexts/") && !within(importPath, serviceRoot) {
			report("cross-service imports are forbidden")
		}
		if !constrained {
			continue
		}
		if rule.denyAdapters && within(importPath, serviceRoot+"/adapters") {
			report(layer + " must not import adapters")
		}
		if rule.denyPlatform && (within(importPath, modulePath+"/internal") || within(importPath, modulePath+"/cmd")) {
			report(layer + " must not import runtime infrastructure")
		}
		if rule.restrictThirdP && !isStdlib(importPath) && !allowed(importPath, serviceRoot, rule.allow) {
			report(layer + " import is outside explicit allowlist")
		}
	}
	return violations
}

func allowed(importPath string, serviceRoot string, allow []string) bool {
	for _, entry := range allow {
		prefix := entry
		if !strings.Contains(entry, ".") {
			prefix = serviceRoot + "/" + entry
		}
		if within(importPath, prefix) {
			return true
		}
	}
	return false
}

func within(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	if within(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
