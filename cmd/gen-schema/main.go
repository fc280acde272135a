// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Command gen-schema writes the request body JSON Schemas served by the API.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/userauth/accountd/internal/httpapi"
)

func main() {
	outDir := "schemas"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}

	schemas, err := httpapi.GenerateSchemas()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		outPath := filepath.Join(outDir, name)
		if err := os.WriteFile(outPath, schemas[name], 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}
