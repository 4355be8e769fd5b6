package detect

// Patterns shared by the rule detector and the residual verifier.
// \b is ASCII-only in RE2, so a match glued to a non-ASCII letter such as
// "é555-123-4567" is still found and redacted.
const (
	EmailPattern = `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`

	// PhonePattern matches North American numbers with an optional +1
	// prefix, optional parenthesised area code, space/dot/dash separators
	// and an optional x / ext / extension suffix.
	PhonePattern = `(?i)\b(?:\+?1[\s\-.]?)?(?:\(?\d{3}\)?[\s\-.]?)\d{3}[\s\-.]?\d{4}(?:\s*(?:x|ext\.?|extension)\s*\d+)?\b`
)

// DefaultRuleConfidence is assigned to rule matches unless overridden.
const DefaultRuleConfidence = 0.99

// DefaultRules returns the built-in free-text rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "email",
			Description: "Email address",
			EntityType:  EntityEmail,
			Pattern:     EmailPattern,
		},
		{
			ID:          "phone-nanp",
			Description: "North American phone number",
			EntityType:  EntityPhone,
			Pattern:     PhonePattern,
		},
	}
}
