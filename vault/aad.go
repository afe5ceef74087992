package vault

// vaultAAD is bound to every at-rest token. Changing it invalidates all
// previously issued tokens.
var vaultAAD = []byte("rehabdocs:vault:v1")

// MakeEncCtx builds the KMS EncryptionContext for a configuration secret.
// KMS requires the exact same map on Decrypt as was used on Encrypt.
//
// Parameters:
//
// env: deployment environment (dev, prod)
// purpose: logical secret name, e.g. "master_secret"
func MakeEncCtx(env, purpose string) map[string]string {
	encCtx := map[string]string{
		"app":     "rehabdocs",
		"purpose": purpose,
	}
	if env != "" {
		encCtx["env"] = env
	}
	return encCtx
}
