package password

import "strings"

// commonPasswords is a compact denylist of the passwords most often seen
// in breach corpora. Matching is case-insensitive. The list is
// intentionally small; integrators with stricter requirements should
// screen against a breach API upstream of this engine.
var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"password", "password1", "password123", "passw0rd", "p@ssw0rd",
		"p@ssword", "123456", "1234567", "12345678", "123456789",
		"1234567890", "qwerty", "qwerty123", "qwertyuiop", "abc123",
		"abcd1234", "letmein", "welcome", "welcome1", "welcome123",
		"admin", "admin123", "administrator", "root", "toor",
		"iloveyou", "monkey", "dragon", "sunshine", "princess",
		"football", "baseball", "superman", "batman", "master",
		"shadow", "michael", "jennifer", "jordan", "hunter",
		"trustno1", "starwars", "whatever", "freedom", "secret",
		"ninja", "mustang", "access", "login", "hello123",
		"charlie", "donald", "flower", "passion", "summer",
		"winter2023", "spring2024", "autumn", "zaq12wsx", "1q2w3e4r",
		"1qaz2wsx", "qazwsx", "asdfgh", "asdf1234", "zxcvbnm",
		"000000", "111111", "121212", "654321", "696969",
		"aa123456", "a1b2c3d4", "changeme", "default", "guest",
		"test123", "temp1234", "letmein1", "pass1234", "security",
		"compliance", "hipaa2024", "training1",
	} {
		commonPasswords[p] = struct{}{}
	}
}

func isCommonPassword(candidate string) bool {
	_, ok := commonPasswords[strings.ToLower(candidate)]
	return ok
}
