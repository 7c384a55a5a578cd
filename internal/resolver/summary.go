package resolver

import (
	"fmt"

	"link-resolver/internal/models"
)

// HopLimitSummary is sent when the redirect chain never settled.
func HopLimitSummary(host string, hops int) string {
	return fmt.Sprintf("[%s] (Unresolved after %d hops)", host, hops)
}

// TitleSummary is sent for textual content.
func TitleSummary(host, title string) string {
	return fmt.Sprintf("[%s] %s", host, title)
}

// BinarySummary is sent for everything else.
func BinarySummary(host string, c models.Classification) string {
	if !c.SizeKnown() {
		return fmt.Sprintf("[%s] %s (size unknown)", host, c.MediaType)
	}
	return fmt.Sprintf("[%s] %s %s", host, c.MediaType, HumanReadableByteCount(c.Size))
}
