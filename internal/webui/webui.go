// Package webui bundles the browser client for the flow API.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var files embed.FS

// FS is the client's file tree rooted at index.html.
func FS() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}

// Handler serves the client.
func Handler() http.Handler {
	return http.FileServer(http.FS(FS()))
}
