// Package web holds the HTML templates served by cmd/server.
package web

import "embed"

//go:embed templates/*.html
var Templates embed.FS
