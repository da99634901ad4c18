// Package appidentityassets carries the app identity compiled into the binary.
package appidentityassets

import _ "embed"

// YAML mirrors .fulmen/app.yaml. The binary falls back to it when no
// identity file is found on disk.
//
//go:embed app.yaml
var YAML []byte
