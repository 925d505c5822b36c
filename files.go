/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"strings"
)

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}

// describeLocator shortens an image locator for log lines; inline images
// are reduced to their mime type and size.
func describeLocator(locator string) string {
	if header, payload, ok := strings.Cut(locator, ","); ok && strings.HasPrefix(header, "data:") {
		mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		return fmt.Sprintf("inline %s (%s)", mime, humanReadableSize(int64(len(payload))))
	}
	if len(locator) > 80 {
		return locator[:77] + "..."
	}
	return locator
}
