// Package jwt issues and verifies the signed bearer tokens backing
// sessions: short-lived access tokens and long-lived refresh tokens,
// each carrying a random token identifier for revocation checks.
package jwt
