// grass-import: loads a YAML knowledge bundle into the state database, or
// exports the stored bundle back to YAML.
//
// Usage:
//
//	grass-import -state state catalogue.yaml      import a bundle
//	grass-import -state state -reference          import the built-in bundle
//	grass-import -state state -export out.yaml    export the stored bundle
//
// Importing replaces the stored patterns, words and hierarchy. Learned
// associations are kept unless -clear is given.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/vthunder/grass/internal/config"
	"github.com/vthunder/grass/internal/knowledge"
	"github.com/vthunder/grass/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	stateDir := flag.String("state", cfg.StatePath, "Path to state directory")
	driver := flag.String("driver", cfg.DBDriver, "SQLite driver: sqlite (pure Go) or sqlite3 (cgo)")
	reference := flag.Bool("reference", false, "Import the built-in reference bundle")
	export := flag.String("export", "", "Write the stored bundle to this YAML file instead of importing")
	clear := flag.Bool("clear", false, "Also forget learned associations")
	dryRun := flag.Bool("dry-run", false, "Validate the bundle without writing it")
	flag.Parse()

	db, err := store.Open(*stateDir, *driver)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", store.Path(*stateDir), err)
	}
	defer db.Close()

	if *export != "" {
		b, err := db.Load()
		if err != nil {
			log.Fatalf("Failed to load stored bundle: %v", err)
		}
		if err := b.SaveFile(*export); err != nil {
			log.Fatalf("Failed to export: %v", err)
		}
		log.Printf("Exported %d patterns, %d words, %d families to %s", len(b.Patterns), len(b.Words), len(b.Hierarchy), *export)
		return
	}

	var b *knowledge.Bundle
	switch {
	case *reference:
		b = knowledge.Reference()
	case flag.NArg() == 1:
		b, err = knowledge.LoadFile(flag.Arg(0))
		if err != nil {
			log.Fatalf("Failed to load %s: %v", flag.Arg(0), err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err := b.Validate(); err != nil {
		log.Fatalf("Invalid bundle: %v", err)
	}
	if *dryRun {
		log.Printf("[dry-run] Would import %d patterns, %d words, %d families", len(b.Patterns), len(b.Words), len(b.Hierarchy))
		return
	}

	if *clear {
		if err := db.Clear(); err != nil {
			log.Fatalf("Failed to clear: %v", err)
		}
	}
	if err := db.Save(b); err != nil {
		log.Fatalf("Failed to import: %v", err)
	}

	stats, err := db.Stats()
	if err != nil {
		log.Fatalf("Failed to read stats: %v", err)
	}
	log.Printf("Stored %d patterns, %d words, %d families, %d associations",
		stats["patterns"], stats["words"], stats["hierarchy"], stats["associations"])
}
