package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"

	"fireknight/sim/internal/battlespec"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "output path for the JSON schema")
	flag.Parse()

	if outPath == "" {
		log.Fatal("battleschema: missing -out path")
	}

	schema, err := battlespec.BuildSchema()
	if err != nil {
		log.Fatalf("battleschema: %v", err)
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("battleschema: marshal schema: %v", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		log.Fatalf("battleschema: create output dir: %v", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatalf("battleschema: write schema: %v", err)
	}
}
