/*
Package security protects document contents at rest.

Objects are encrypted with AES-256-GCM before they reach the task store or
the main view. The ciphertext is the random nonce followed by the sealed
JSON object. The key is either 32 bytes given as hex or derived from a
secret with SHA-256 (see config.EncryptionConfig).

Indexed string values are stored as their hex SHA-256 (HashValue), so the
secondary views can answer equality lookups without holding plaintext.
*/
package security
