//go:build dev

package main

import "io/fs"

// getFrontendFS returns nil in dev builds; assets then come from --root or
// the root key of the dev config file.
func getFrontendFS() (fs.FS, error) {
	return nil, nil
}
