package model

import "time"

// KeyRecord is the shared rotation state of a single API key. Index is the
// storage slot (0..N-1) and never the secret itself.
type KeyRecord struct {
	Index       int
	Secret      string
	QuotaUsed   int64
	LastUsed    time.Time
	IsExhausted bool
}

// PoolStatus summarizes the exhausted and available keys in the pool.
type PoolStatus struct {
	Total     int
	Available int
	Exhausted int
}

// MaskSecret returns a display-safe form of secret that exposes only the first
// and last four characters.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
