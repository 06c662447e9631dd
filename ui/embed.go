// Package ui embeds the frontend build output for production serving.
package ui

import "embed"

// Frontend holds the compiled dashboard assets from ui/frontend/dist/.
// pryx-host unpacks this into its data directory at startup and falls
// back to a built-in placeholder page if the embedded tree is empty.
//
//go:embed all:frontend/dist
var Frontend embed.FS
