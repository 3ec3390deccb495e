// Package authcore is an embeddable authentication engine for services
// that keep their own user records. It covers password login with
// argon2id hashing and adaptive lockout, TOTP-based MFA with single-use
// backup codes, JWT access/refresh token pairs with revocation, and
// Redis-backed sessions that degrade to local-only operation when the
// cache is unreachable.
//
// The host application supplies a CredentialStore over its user records
// and receives an Engine:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithCredentialStore(store).
//		Build()
//
// All engine methods are safe for concurrent use.
package authcore
