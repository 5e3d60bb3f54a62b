//go:build !dev

package main

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed frontend/dist
var embeddedFrontend embed.FS

// getFrontendFS returns the front-end build embedded at compile time.
func getFrontendFS() (fs.FS, error) {
	sub, err := fs.Sub(embeddedFrontend, "frontend/dist")
	if err != nil {
		return nil, fmt.Errorf("front-end assets: %w", err)
	}
	return sub, nil
}
