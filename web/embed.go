// Package web holds the embedded page template and static assets.
package web

import "embed"

//go:embed templates/*.html static/*
var EmbedFS embed.FS
