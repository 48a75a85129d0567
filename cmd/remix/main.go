// Command remix expands an analyzer descriptor file into prompt rows offline,
// without touching the API or the provider. Output is JSON Lines, one
// PromptRow per line.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stylesafe/internal/domain"
	"stylesafe/internal/remix"
	"stylesafe/pkg/jsonl"
)

func main() {
	_ = godotenv.Load()

	descriptorsPath := flag.String("descriptors", "", "path to the analyzer's descriptor JSON (array of ImageDescriptor)")
	seed := flag.Int64("seed", 1, "remix seed")
	maxPerImage := flag.Int("max-per-image", 1, "prompt rows per descriptor (1-100)")
	outPath := flag.String("out", "", "output JSONL path (default stdout)")
	flag.Parse()

	if *descriptorsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: remix -descriptors <file> [-seed n] [-max-per-image n] [-out file]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*descriptorsPath)
	if err != nil {
		fatal(err)
	}
	var descriptors []domain.ImageDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		fatal(fmt.Errorf("parse %s: %w", *descriptorsPath, err))
	}

	rows, err := remix.Generate(descriptors, remix.Options{
		MaxPerImage: *maxPerImage,
		Seed:        *seed,
	})
	if err != nil {
		fatal(err)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		out = f
	}

	writer := jsonl.NewWriter(out)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			fatal(err)
		}
	}
	fmt.Fprintf(os.Stderr, "remixed %d descriptors into %d rows\n", len(descriptors), len(rows))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "remix:", err)
	os.Exit(1)
}
