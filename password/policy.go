package password

import (
	"fmt"
	"strings"
	"unicode"
)

// Policy validates candidate passwords against complexity rules, a
// common-password list, and similarity to personal information.
type Policy struct {
	MinLength           int
	MaxLength           int
	SimilarityThreshold float64
}

// NewPolicy builds a Policy. Threshold is the normalized edit-distance
// ratio above which a candidate is considered too similar to a personal
// field (0.7 rejects a candidate sharing 70% of its characters in
// order).
func NewPolicy(minLength, maxLength int, threshold float64) *Policy {
	return &Policy{
		MinLength:           minLength,
		MaxLength:           maxLength,
		SimilarityThreshold: threshold,
	}
}

// Validate returns every rule the candidate violates, or nil when it
// passes. Personal fields are checked both as-is and reversed.
func (p *Policy) Validate(candidate string, personal []string) []string {
	var issues []string

	if len(candidate) < p.MinLength {
		issues = append(issues, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && len(candidate) > p.MaxLength {
		issues = append(issues, fmt.Sprintf("must be at most %d characters", p.MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol, hasSpace bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsSpace(r):
			hasSpace = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		issues = append(issues, "must contain an uppercase letter")
	}
	if !hasLower {
		issues = append(issues, "must contain a lowercase letter")
	}
	if !hasDigit {
		issues = append(issues, "must contain a digit")
	}
	if !hasSymbol {
		issues = append(issues, "must contain a symbol")
	}
	if hasSpace {
		issues = append(issues, "must not contain whitespace")
	}

	if isCommonPassword(candidate) {
		issues = append(issues, "is too common")
	}

	lower := strings.ToLower(candidate)
	for _, field := range personal {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if similarity(lower, field) >= p.SimilarityThreshold ||
			similarity(lower, reverse(field)) >= p.SimilarityThreshold {
			issues = append(issues, "is too similar to personal information")
			break
		}
	}

	return issues
}

// Verifier abstracts hash verification so the history check does not
// depend on a concrete hasher.
type Verifier interface {
	Verify(password, encodedHash string) (bool, error)
}

// CheckHistory reports whether candidate matches any of the most recent
// limit entries in history (newest first). Entries that fail to parse
// are skipped; password history is advisory, not load-bearing.
func CheckHistory(v Verifier, candidate string, history []string, limit int) (bool, error) {
	if limit <= 0 || len(history) == 0 {
		return false, nil
	}
	if len(history) > limit {
		history = history[:limit]
	}

	for _, hash := range history {
		match, err := v.Verify(candidate, hash)
		if err != nil {
			continue
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// similarity is 1 - d/maxLen where d is the Levenshtein distance. Equal
// strings score 1, fully dissimilar strings score near 0.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
