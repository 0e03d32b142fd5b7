package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-pipeline/sources"
)

/* validate-sources - Standalone CLI tool to validate sources.yaml
 * Usage: go run cmd/validate-sources/main.go [sources.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	// Get sources file path from args or use default
	sourcesFile := "sources.yaml"
	if len(os.Args) > 1 {
		sourcesFile = os.Args[1]
	}

	fmt.Printf("Validating sources file: %s\n", sourcesFile)
	fmt.Println(strings.Repeat("-", 50))

	// Create loader and attempt to load sources
	loader := sources.NewLoader()
	if err := loader.Load(sourcesFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Success - print loaded sources
	loadedSources := loader.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d source(s):\n", len(loadedSources))

	for i, source := range loadedSources {
		fmt.Printf("\n%d. Source: %s\n", i+1, source.Name)
		fmt.Printf("   Enabled:       %t\n", source.Enabled)
		if source.Verifier != "" {
			fmt.Printf("   Verifier:      %s\n", source.Verifier)
		} else if source.Secret != "" {
			fmt.Printf("   Verifier:      hmac (default)\n")
		} else {
			fmt.Printf("   Verifier:      none (no secret configured)\n")
		}
		if len(source.AllowedEvents) > 0 {
			fmt.Printf("   Allowed Events: %s\n", strings.Join(source.AllowedEvents, ", "))
		}
		for key, value := range source.Metadata {
			fmt.Printf("   Metadata:      %s=%s\n", key, value)
		}
	}

	fmt.Printf("\n✓ All sources are valid!\n")
	os.Exit(0)
}
