// Command flake-svcgen generates typed Go wrappers for flake object types.
//
// Each YAML definition names an object type, its properties and the custom
// messages it answers. The generated file declares the type id, one tag per
// property, a constructor over model.BaseService with the default values,
// typed getters and setters, and one handler setter per message.
//
// Usage:
//
//	flake-svcgen -defs <file-or-dir> -package <name> -output <dir>
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/imports"
)

func main() {
	defs := flag.String("defs", "", "Object type YAML file, or a directory of them")
	pkg := flag.String("package", "", "Package name of the generated files")
	outputDir := flag.String("output", "", "Output directory for generated Go files")
	flag.Parse()

	if *defs == "" || *pkg == "" || *outputDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: flake-svcgen -defs <file-or-dir> -package <name> -output <dir>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(*defs, *pkg, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(defs, pkg, outputDir string) error {
	paths, err := definitionFiles(defs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no definitions in %s", defs)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	types := make(map[string]string)
	for _, path := range paths {
		def, err := LoadServiceDef(path)
		if err != nil {
			return err
		}
		if prev, dup := types[strings.ToLower(def.Type)]; dup {
			return fmt.Errorf("%s: type %s already used by %s", def.Name, def.Type, prev)
		}
		types[strings.ToLower(def.Type)] = def.Name

		code, err := GenerateService(def, pkg)
		if err != nil {
			return fmt.Errorf("generating %s: %w", def.Name, err)
		}
		outPath := filepath.Join(outputDir, fileName(def.Name)+"_gen.go")
		if err := writeFormatted(outPath, code); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(outPath), err)
		}
		fmt.Printf("  generated %s\n", outPath)
	}
	return nil
}

// definitionFiles returns path itself or the YAML files directly in it.
func definitionFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, m...)
	}
	return paths, nil
}

// writeFormatted formats Go source code with goimports and writes it to a file.
func writeFormatted(path string, code string) error {
	formatted, err := imports.Process(path, []byte(code), nil)
	if err != nil {
		// Write unformatted so you can debug the generator output
		_ = os.WriteFile(path+".broken", []byte(code), 0o644)
		return fmt.Errorf("goimports %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, formatted, 0o644)
}

// fileName converts "RoomThermostat" to "room_thermostat".
func fileName(name string) string {
	var result strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
