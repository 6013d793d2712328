package validate

import "regexp"

// Danger patterns rejected at ingress before the sanitizer ever runs. This
// is a blunt prefilter: the full allow-list sanitizer still runs on every
// accepted payload before application. Failing fast here avoids feeding
// obviously hostile input to the heavier sanitizer and yields an error
// pointer at the offending field instead of a stripped-silent result.
var dangerPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"script tag", regexp.MustCompile(`(?i)<script`)},
	{"style tag", regexp.MustCompile(`(?i)<style`)},
	{"inline event handler", regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{"javascript: url", regexp.MustCompile(`(?i)javascript:`)},
	{"iframe tag", regexp.MustCompile(`(?i)<iframe`)},
	{"embed tag", regexp.MustCompile(`(?i)<embed`)},
	{"object tag", regexp.MustCompile(`(?i)<object`)},
	{"form tag", regexp.MustCompile(`(?i)<form`)},
}

// scanDanger returns the name of the first danger pattern matched by html,
// or "" when the payload is clean.
func scanDanger(html string) string {
	for _, p := range dangerPatterns {
		if p.re.MatchString(html) {
			return p.name
		}
	}
	return ""
}
