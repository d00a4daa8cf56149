package gormstore

import (
	"encoding/hex"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/pkg/log"
	"github.com/torrtrack/torrtrack/policy"
	"github.com/torrtrack/torrtrack/writeback"
)

var _ writeback.Store = (*Store)(nil)

// Store persists the policy tables and swarm snatch counts to a relational
// database, and can reload them at startup.
type Store struct {
	db *gorm.DB
}

// New opens a Store per cfg, migrating the schema if necessary.
func New(provided Config) (*Store, error) {
	cfg := provided.Validate()

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Dsn)
	default:
		dialector = sqlite.Open(cfg.Dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&whitelistRow{}, &blacklistRow{}, &keyRow{}, &userRow{}, &torrentRow{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// LoadWhitelist returns every persisted whitelist entry.
func (s *Store) LoadWhitelist() ([]bittorrent.InfoHash, error) {
	var rows []whitelistRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return decodeInfoHashes(rows, func(r whitelistRow) string { return r.InfoHash })
}

// LoadBlacklist returns every persisted blacklist entry.
func (s *Store) LoadBlacklist() ([]bittorrent.InfoHash, error) {
	var rows []blacklistRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return decodeInfoHashes(rows, func(r blacklistRow) string { return r.InfoHash })
}

// LoadKeys returns every persisted external key and its expiry.
func (s *Store) LoadKeys() (map[policy.Key]policy.KeyEntry, error) {
	var rows []keyRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[policy.Key]policy.KeyEntry, len(rows))
	for _, r := range rows {
		out[policy.KeyFromHex(r.Key)] = policy.KeyEntry{Expiry: r.Expiry}
	}
	return out, nil
}

// LoadUsers returns every persisted user entry.
func (s *Store) LoadUsers() ([]policy.UserEntry, error) {
	var rows []userRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]policy.UserEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, policy.UserEntry{
			Key:        policy.KeyFromHex(r.Key),
			Uploaded:   r.Uploaded,
			Downloaded: r.Downloaded,
			Completed:  r.Completed,
			Active:     r.Active,
		})
	}
	return out, nil
}

// LoadTorrents returns every persisted swarm's snatch count, keyed by
// info_hash.
func (s *Store) LoadTorrents() (map[bittorrent.InfoHash]uint32, error) {
	var rows []torrentRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[bittorrent.InfoHash]uint32, len(rows))
	for _, r := range rows {
		b, err := hex.DecodeString(r.InfoHash)
		if err != nil || len(b) != 20 {
			continue
		}
		out[bittorrent.InfoHashFromBytes(b)] = r.Snatches
	}
	return out, nil
}

// SaveWhitelist upserts entries, deleting any journaled as Removed.
func (s *Store) SaveWhitelist(entries []policy.UpdateEntry) error {
	for _, e := range entries {
		if e.Action == policy.Remove {
			if err := s.db.Delete(&whitelistRow{}, "info_hash = ?", e.Key).Error; err != nil {
				return err
			}
			continue
		}
		row := whitelistRow{InfoHash: e.Key, UpdatedAt: time.Now()}
		if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// SaveBlacklist upserts entries, deleting any journaled as Removed.
func (s *Store) SaveBlacklist(entries []policy.UpdateEntry) error {
	for _, e := range entries {
		if e.Action == policy.Remove {
			if err := s.db.Delete(&blacklistRow{}, "info_hash = ?", e.Key).Error; err != nil {
				return err
			}
			continue
		}
		row := blacklistRow{InfoHash: e.Key, UpdatedAt: time.Now()}
		if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// SaveKeys upserts entries, deleting any journaled as Removed.
func (s *Store) SaveKeys(entries []policy.UpdateEntry) error {
	for _, e := range entries {
		if e.Action == policy.Remove {
			if err := s.db.Delete(&keyRow{}, "key = ?", e.Key).Error; err != nil {
				return err
			}
			continue
		}
		entry, _ := e.Payload.(policy.KeyEntry)
		row := keyRow{Key: e.Key, Expiry: entry.Expiry, UpdatedAt: time.Now()}
		if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// SaveUsers upserts entries, deleting any journaled as Removed.
func (s *Store) SaveUsers(entries []policy.UpdateEntry) error {
	for _, e := range entries {
		if e.Action == policy.Remove {
			if err := s.db.Delete(&userRow{}, "key = ?", e.Key).Error; err != nil {
				return err
			}
			continue
		}
		entry, _ := e.Payload.(policy.UserEntry)
		row := userRow{
			Key:        e.Key,
			UserID:     hex.EncodeToString(entry.ID[:]),
			Uploaded:   entry.Uploaded,
			Downloaded: entry.Downloaded,
			Completed:  entry.Completed,
			Active:     entry.Active,
			UpdatedAt:  time.Now(),
		}
		if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// SaveTorrents upserts entries. Torrent snatch counts are never removed;
// each entry overwrites the stored count with the journaled one.
func (s *Store) SaveTorrents(entries []policy.UpdateEntry) error {
	for _, e := range entries {
		snatches, _ := e.Payload.(uint32)
		row := torrentRow{InfoHash: e.Key, Snatches: snatches, UpdatedAt: time.Now()}
		if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func decodeInfoHashes[T any](rows []T, hexOf func(T) string) ([]bittorrent.InfoHash, error) {
	out := make([]bittorrent.InfoHash, 0, len(rows))
	for _, r := range rows {
		b, err := hex.DecodeString(hexOf(r))
		if err != nil {
			log.Warn("gormstore: skipping malformed persisted info_hash", log.Fields{"raw": hexOf(r)})
			continue
		}
		if len(b) != 20 {
			continue
		}
		out = append(out, bittorrent.InfoHashFromBytes(b))
	}
	return out, nil
}
