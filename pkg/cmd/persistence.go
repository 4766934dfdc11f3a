// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"strings"

	"github.com/runbookd/runbookd/pkg/persistence"
	"github.com/runbookd/runbookd/pkg/persistence/file"
	"github.com/runbookd/runbookd/pkg/persistence/memory"
)

var supportedStoreProviders = []string{"file", "memory"}

// NewStore creates the audit store named by a database URL. Unknown schemes
// fall back to the file store, which treats the URL as a directory path.
func NewStore(databaseURL string) (persistence.Store, error) {
	switch parseStoreProvider(databaseURL) {
	case "memory":
		return memory.NewStore(), nil
	default:
		return file.NewStore(databaseURL)
	}
}

func parseStoreProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedStoreProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
