package ratelimit

import "time"

// Seconds returns a duration of n seconds.
func Seconds(n uint64) time.Duration {
	return time.Duration(n) * time.Second
}

// Minutes returns a duration of n minutes.
func Minutes(n uint64) time.Duration {
	return Seconds(n * 60)
}

// Hours returns a duration of n hours.
func Hours(n uint64) time.Duration {
	return Minutes(n * 60)
}

// Days returns a duration of n days of 24 hours.
func Days(n uint64) time.Duration {
	return Hours(n * 24)
}
