// Package appid resolves the application identity (binary name, env prefix,
// config name, telemetry namespace) from .fulmen/app.yaml or the copy
// embedded in the binary.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/pacerhq/pacer/internal/assets/appidentity"
)

// DefaultEnvPrefix applies when no identity can be loaded.
const DefaultEnvPrefix = "PACER_"

func init() {
	// A file named by FULMEN_APP_IDENTITY_PATH or found on disk still wins;
	// the embedded copy only fills in for standalone binaries.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the cached identity, loading it on first use.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvVar prefixes name with the identity's env prefix, so EnvVar(ctx,
// "ADMIN_TOKEN") is PACER_ADMIN_TOKEN for the default identity.
func EnvVar(ctx context.Context, name string) string {
	prefix := DefaultEnvPrefix
	if identity, err := Get(ctx); err == nil && identity != nil && identity.EnvPrefix != "" {
		prefix = identity.EnvPrefix
	}
	return prefix + name
}
