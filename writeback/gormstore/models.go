package gormstore

import "time"

// whitelistRow and blacklistRow persist a policy.HashSet entry, keyed by the
// hex-encoded info_hash.
type whitelistRow struct {
	InfoHash  string `gorm:"primaryKey"`
	UpdatedAt time.Time
}

type blacklistRow struct {
	InfoHash  string `gorm:"primaryKey"`
	UpdatedAt time.Time
}

// keyRow persists a policy.Keys entry, keyed by the hex-encoded key.
type keyRow struct {
	Key       string `gorm:"primaryKey"`
	Expiry    int64
	UpdatedAt time.Time
}

// userRow persists a policy.Users entry, keyed by the hex-encoded announce
// key.
type userRow struct {
	Key        string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	Uploaded   uint64
	Downloaded uint64
	Completed  uint64
	Active     bool
	UpdatedAt  time.Time
}

// torrentRow persists a swarm's snatch count, keyed by the hex-encoded
// info_hash.
type torrentRow struct {
	InfoHash  string `gorm:"primaryKey"`
	Snatches  uint32
	UpdatedAt time.Time
}
