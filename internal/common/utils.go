package common

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	markdownLinkPattern = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)
	urlPattern          = regexp.MustCompile(`^https?://[a-zA-Z0-9][-a-zA-Z0-9.]*[a-zA-Z0-9](:[0-9]+)?(/[^\s]*)?$`)
)

// SanitizeURL performs basic cleanup on URLs to handle common copy-paste issues.
// Removes whitespace, trailing punctuation and markdown artifacts.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)

	// "[click here](https://example.com)" -> "https://example.com"
	if matches := markdownLinkPattern.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = matches[1]
	}

	trailingChars := []string{",", ".", ")", "}", "]", "\"", "'", ">", ";"}
	for _, char := range trailingChars {
		cleaned = strings.TrimSuffix(cleaned, char)
	}

	leadingChars := []string{"(", "[", "<", "\"", "'"}
	for _, char := range leadingChars {
		cleaned = strings.TrimPrefix(cleaned, char)
	}

	return strings.TrimSpace(cleaned)
}

// SanitizeAndValidateURL cleans rawURL and checks that it is an absolute
// http(s) URL with a host.
func SanitizeAndValidateURL(rawURL string) (string, error) {
	cleaned := SanitizeURL(rawURL)
	if cleaned == "" {
		return "", fmt.Errorf("empty URL")
	}

	// Spaces must be pre-encoded as %20
	if strings.Contains(cleaned, " ") {
		return "", fmt.Errorf("URL %q contains spaces", rawURL)
	}
	if !urlPattern.MatchString(cleaned) {
		return "", fmt.Errorf("URL %q is not a valid http(s) URL", rawURL)
	}

	parsed, err := url.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("URL %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL %q must use http or https", rawURL)
	}
	if parsed.Host == "" || strings.ContainsAny(parsed.Host, "{}[]<>\"'") {
		return "", fmt.Errorf("URL %q has an invalid host", rawURL)
	}
	return cleaned, nil
}

// JobName trims raw and validates the result. The returned name is the one
// to use for the checkpoint and output folder.
func JobName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if err := ValidateJobName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateJobName checks that name can be used as a single directory and
// checkpoint file name.
func ValidateJobName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("job name is required")
	case name == "." || name == "..":
		return fmt.Errorf("job name %q is not allowed", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("job name %q must not contain path separators", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("job name %q must not start with a dot", name)
	case name != strings.TrimSpace(name):
		return fmt.Errorf("job name %q must not start or end with spaces", name)
	}
	return nil
}
