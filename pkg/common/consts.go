package common

import "time"

const (
	// Session cache
	SessionKeyPrefix  = "user:"
	DefaultSessionTTL = 72 * time.Hour

	// Login rate limit counters
	RateLimitKeyPrefix = "rate_limit:login:"

	// Password hashing
	DefaultBcryptCost = 12

	// Machine client payloads
	EncryptedContentHeader = "X-Encrypted-Content"
	DefaultReplayWindow    = 60 * time.Second

	// Release mirror
	DefaultReleaseTimeout = 15 * time.Second
	DefaultReleaseRepo    = "Lunova-Studio/WonderLab.Override"
)
