// Package leads derives company information from a lead's email address.
package leads

import (
	"regexp"
	"strings"
)

// consumerProviders are mailbox providers whose domains say nothing about
// the sender's employer.
var consumerProviders = []string{
	"gmail", "yahoo", "ymail", "rocketmail", "outlook", "hotmail", "live",
	"msn", "icloud", "me", "mac", "aol", "zoho", "protonmail", "mail", "gmx",
}

// consumerPattern matches a provider name as a whole dot-separated label.
var consumerPattern = regexp.MustCompile(`(^|\.)(` + strings.Join(consumerProviders, "|") + `)(\.|$)`)

// ExtractDomain returns the company website implied by email, or false when
// the address has no domain or belongs to a consumer mail provider.
func ExtractDomain(email string) (string, bool) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "", false
	}
	domain := email[at+1:]
	if domain == "" {
		return "", false
	}
	if consumerPattern.MatchString(domain) {
		return "", false
	}
	return "https://" + domain, true
}
