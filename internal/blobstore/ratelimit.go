package blobstore

import (
	"regexp"
	"strconv"
	"strings"
)

const defaultRateLimitWaitSeconds = 60

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`FLOOD_WAIT \((\d+)\)`),
	regexp.MustCompile(`FLOOD_WAIT_(\d+)`),
	regexp.MustCompile(`wait of (\d+) seconds`),
}

// ParseRateLimitWait recognizes the three textual rate-limit patterns the
// blob store backend may surface and returns the wait in seconds. If the
// text merely contains "FLOOD_WAIT" without a parseable number, it falls
// back to the default wait.
func ParseRateLimitWait(errText string) (waitSeconds int, isRateLimit bool) {
	for _, re := range rateLimitPatterns {
		if m := re.FindStringSubmatch(errText); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	if strings.Contains(errText, "FLOOD_WAIT") {
		return defaultRateLimitWaitSeconds, true
	}
	return 0, false
}
