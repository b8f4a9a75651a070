// Package secrets seals short credential strings (provider API keys,
// webhook secrets) before they are written to storage.
//
// A Cipher derives a purpose-bound AES-256 key from a 32-byte master key
// with HKDF-SHA-256, then encrypts with AES-GCM. Sealed values are
// self-describing text of the form "enc:v1:<base64(nonce|ciphertext|tag)>",
// so plaintext rows written before encryption was enabled can still be read:
// Open returns any value without the prefix unchanged.
//
// # Usage
//
//	key, _ := secrets.ParseKey(os.Getenv("SETTINGS_ENCRYPTION_KEY"))
//	c, err := secrets.NewCipher(key, "settings")
//	if err != nil {
//		return err
//	}
//	sealed, _ := c.Seal("sk_live_...")
//	plain, _ := c.Open(sealed)
package secrets
