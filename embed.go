package voiceinfo

import "embed"

// EmbeddedAssets holds the default SPA shell, served when no shell_path is
// configured.
//
//go:embed embedded/index.html
var EmbeddedAssets embed.FS
