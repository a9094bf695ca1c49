// Command urldex drives the URL index engine: ingest datasets, build index
// versions, serve the query API, inspect state and collect garbage.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
