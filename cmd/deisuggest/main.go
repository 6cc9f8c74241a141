// deisuggest builds a next-word frequency index from a text corpus and serves
// ranked completions for typed phrases.
package main

import (
	"os"

	"github.com/deidaraiorek/deisuggest/cmd/deisuggest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
