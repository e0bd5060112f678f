// Command redirects maintains the .goredirectstbl section of the kernel
// image. Each table entry pairs the address of a runtime symbol with the
// address of the kernel function carrying a //go:redirect-from comment that
// names it; rt0 walks the table at boot and patches every runtime symbol to
// jump into its kernel replacement.
//
// The tool understands two commands:
//
//	count                    print the number of redirect comments
//	populate-table <image>   resolve symbol addresses and fill the table
package main

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

const directive = "//go:redirect-from"

// sourceRoots lists the directories that may contain redirect comments.
var sourceRoots = []string{"kernel/", "device/"}

// redirect links a runtime symbol to the kernel function that replaces it.
type redirect struct {
	from string
	to   string

	fromVMA uint64
	toVMA   uint64
}

func main() {
	flag.Parse()

	if _, err := os.Stat("go.mod"); err != nil {
		exit(errors.New("this tool must be run from the repository root"))
	}

	args := flag.Args()
	if len(args) == 0 {
		exit(errors.New("missing command"))
	}

	switch cmd := args[0]; cmd {
	case "count":
		redirects, err := scanRedirects()
		if err != nil {
			exit(err)
		}
		fmt.Printf("%d", len(redirects))
	case "populate-table":
		if len(args) != 2 {
			exit(errors.New("populate-table requires the path to the kernel image as an argument"))
		}
		if err := populateTable(args[1]); err != nil {
			exit(err)
		}
	default:
		exit(fmt.Errorf("unknown command %q", cmd))
	}
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[redirects] error: %s\n", err.Error())
	os.Exit(1)
}

// populateTable fills the redirect table of the given kernel image with the
// resolved (from, to) symbol address pairs.
func populateTable(imgFile string) error {
	redirects, err := scanRedirects()
	if err != nil {
		return err
	}

	if err = resolveVMAs(redirects, imgFile); err != nil {
		return err
	}

	return writeTable(redirects, imgFile)
}

// scanRedirects parses every non-test Go file under the source roots and
// collects the redirect comments attached to function declarations.
func scanRedirects() ([]*redirect, error) {
	prefix, err := modulePath()
	if err != nil {
		return nil, err
	}

	var redirects []*redirect
	for _, root := range sourceRoots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}

			fileRedirects, err := parseFile(prefix, path)
			if err != nil {
				return err
			}
			redirects = append(redirects, fileRedirects...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return redirects, nil
}

// parseFile returns the redirects declared by goFile. The redirect target
// name is fully qualified using the module path so that it matches the symbol
// name the linker emits.
func parseFile(prefix, goFile string) ([]*redirect, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, goFile, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", goFile, err)
	}

	var redirects []*redirect
	for _, decl := range f.Decls {
		fnDecl, ok := decl.(*ast.FuncDecl)
		if !ok || fnDecl.Doc == nil {
			continue
		}

		for _, comment := range fnDecl.Doc.List {
			if !strings.HasPrefix(comment.Text, directive) {
				continue
			}

			fqName := fmt.Sprintf("%s/%s.%s", prefix, filepath.Dir(goFile), fnDecl.Name)

			fields := strings.Fields(comment.Text)
			if len(fields) != 2 || fields[0] != directive {
				return nil, fmt.Errorf("%s: malformed %s comment for %q", goFile, directive, fqName)
			}

			redirects = append(redirects, &redirect{
				from: fields[1],
				to:   fqName,
			})
		}
	}

	return redirects, nil
}

// modulePath extracts the module path from the go.mod file in the current
// directory.
func modulePath() (string, error) {
	data, err := ioutil.ReadFile("go.mod")
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if fields := strings.Fields(line); len(fields) == 2 && fields[0] == "module" {
			return fields[1], nil
		}
	}

	return "", errors.New("go.mod: missing module directive")
}

// resolveVMAs looks up the virtual addresses of both ends of each redirect in
// the image's symbol table.
func resolveVMAs(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	symbols, err := f.Symbols()
	if err != nil {
		return err
	}

	vma := make(map[string]uint64, len(symbols))
	for _, symbol := range symbols {
		vma[symbol.Name] = symbol.Value
	}

	for _, r := range redirects {
		if r.fromVMA = vma[r.from]; r.fromVMA == 0 {
			return fmt.Errorf("%s: could not locate address of %q", imgFile, r.from)
		}
		if r.toVMA = vma[r.to]; r.toVMA == 0 {
			return fmt.Errorf("%s: could not locate address of %q", imgFile, r.to)
		}
	}

	return nil
}

// writeTable overwrites the image's .goredirectstbl section contents with the
// resolved address pairs.
func writeTable(redirects []*redirect, imgFile string) error {
	ef, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	section := ef.Section(".goredirectstbl")
	ef.Close()
	if section == nil {
		return fmt.Errorf("%s: missing .goredirectstbl section", imgFile)
	}

	f, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Seek(int64(section.Offset), io.SeekStart); err != nil {
		return err
	}

	for _, r := range redirects {
		if err = binary.Write(f, binary.LittleEndian, [2]uint64{r.fromVMA, r.toVMA}); err != nil {
			return err
		}
	}

	return nil
}
