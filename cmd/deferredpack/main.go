// Command deferredpack packs a shader and mesh directory into an archive
// that source.OpenArchiveFile serves to a renderer.
package main

import (
	"flag"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/shader"
	"github.com/gogpu/deferred/source"
)

func main() {
	var (
		dir     = flag.String("dir", "shaders", "source directory")
		output  = flag.String("output", "shaders.dra", "archive file")
		check   = flag.Bool("check", true, "compile every program before packing")
		config  = flag.String("config", "", "renderer config to validate")
		verbose = flag.Bool("v", false, "log compiler activity")
	)
	flag.Parse()

	if *verbose {
		deferred.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	compiler := shader.Compiler{Validate: true}
	if *config != "" {
		cfg, err := deferred.LoadConfig(*config)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		compiler = shader.Compiler{Validate: cfg.Shaders.Validate, Debug: cfg.Shaders.Debug}
	}

	fsys := os.DirFS(*dir)
	if *check {
		n, err := compileAll(fsys, compiler)
		if err != nil {
			log.Fatalf("Failed to compile: %v", err)
		}
		log.Printf("Compiled %d programs\n", n)
	}

	w := source.NewArchiveWriter()
	if err := w.AddFS(fsys); err != nil {
		log.Fatalf("Failed to read %s: %v", *dir, err)
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create archive: %v", err)
	}
	size, err := w.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatalf("Failed to write archive: %v", err)
	}

	log.Printf("Packed %d entries into %s (%d bytes)\n", w.Len(), *output, size)
}

// compileAll compiles the WGSL files found in stage directories.
func compileAll(fsys fs.FS, c shader.Compiler) (int, error) {
	n := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".wgsl" {
			return err
		}
		dir, _, _ := strings.Cut(p, "/")
		if _, ok := shader.ParseStage(dir); !ok {
			return nil
		}
		code, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if _, err := c.Compile(p, string(code)); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
