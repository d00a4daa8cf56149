package bittorrent

// RequestSanitizer replaces unreasonable values parsed from a frontend with
// sane, configured defaults before they reach the tracker logic.
type RequestSanitizer struct {
	MaxNumWant          uint32 `yaml:"max_numwant"`
	DefaultNumWant      uint32 `yaml:"default_numwant"`
	MaxScrapeInfoHashes uint32 `yaml:"max_scrape_infohashes"`
}

// SanitizeAnnounce enforces the configured max/default NumWant.
func (rs RequestSanitizer) SanitizeAnnounce(r *AnnounceRequest) {
	if !r.NumWantProvided {
		r.NumWant = rs.DefaultNumWant
	} else if r.NumWant > rs.MaxNumWant {
		r.NumWant = rs.MaxNumWant
	}
}

// SanitizeScrape enforces the configured max number of info_hashes.
func (rs RequestSanitizer) SanitizeScrape(r *ScrapeRequest) {
	if len(r.InfoHashes) > int(rs.MaxScrapeInfoHashes) {
		r.InfoHashes = r.InfoHashes[:rs.MaxScrapeInfoHashes]
	}
}
