// Command noteflow synchronizes the interactive to-do nodes embedded in
// rich-text documents with an embedded SQLite database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
