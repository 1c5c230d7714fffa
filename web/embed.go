// Package web embeds the daemon's built-in status page. The page is a
// single self-contained HTML file so the daemon binary needs no asset
// pipeline; richer frontends talk to the same /v1 API from outside.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist/*
var content embed.FS

// Assets returns the embedded web assets rooted at dist/.
func Assets() (fs.FS, error) {
	return fs.Sub(content, "dist")
}
