package sanitize

import (
	"fmt"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"uicp/internal/protocol"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// Strict sanitizes html and returns it as SafeHTML. Inputs over the 64 KiB
// cap are rejected before the sanitizer runs. The pipeline is the allow-list
// policy followed by the URL/id/rel post-processing pass.
func Strict(html string) (SafeHTML, error) {
	if len(html) > protocol.MaxHTMLBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d byte cap",
			protocol.ErrSanitizationInputTooLarge, len(html), protocol.MaxHTMLBytes)
	}

	policyOnce.Do(func() { policy = newStrictPolicy() })
	cleaned := policy.Sanitize(html)

	processed, err := postProcess(cleaned)
	if err != nil {
		return "", fmt.Errorf("post-processing sanitized html: %w", err)
	}
	return SafeHTML(processed), nil
}
