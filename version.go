package sharedcell

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Version of the sharedcell-stress binary (set by linker).
var Version = "dev"

// Timestamp of the sharedcell-stress binary (set by linker).
var Timestamp = "0"

// IsRelease returns true if the version is a release version.
func IsRelease(v string) bool {
	return regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(v)
}

// FormattedVersion renders a version and its Unix build timestamp for display.
func FormattedVersion(version, timestamp string) string {
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || seconds <= 0 {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, time.Unix(seconds, 0).UTC().Format(time.DateOnly))
}
