// Command fiscaudit audits Brazilian NF-e fiscal documents.
package main

import (
	"os"

	"github.com/fiscalstack/fiscaudit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
