// Package password implements the password lifecycle primitives: Argon2id
// hashing with PHC-encoded output and transparent parameter-upgrade
// detection, plus the policy engine that screens candidates against
// complexity rules, a common-password list, personal-information
// similarity, and reuse of recent history entries.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The package never stores, retrieves, or logs plaintext passwords;
// callers supply plaintext and receive hashes or verdicts.
package password
