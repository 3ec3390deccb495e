// Package secrets implements the versioned envelope used to store MFA
// secrets at rest. Legacy plaintext entries (version 1) remain readable;
// new entries are AES-GCM encrypted (version 2) whenever a key is
// configured, and a failed decryption is always a hard error.
package secrets
