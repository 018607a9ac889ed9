// Package views holds the HTML templates compiled into the binary.
package views

import "embed"

//go:embed layout.html posts/*.html auth/*.html
var FS embed.FS
