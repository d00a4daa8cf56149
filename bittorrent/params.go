package bittorrent

import (
	"net/url"
	"strconv"
	"strings"
)

// Params is used to fetch (optional) request parameters from an Announce or
// Scrape.
//
// For HTTP requests this wraps the parsed query string; for UDP requests
// this wraps the parsed BEP 41 URL data carried in the trailing option.
type Params interface {
	// String returns the raw string value for key, and whether it was
	// present at all.
	String(key string) (string, bool)

	// RawQuery returns the raw, still-percent-encoded query the Params was
	// parsed from.
	RawQuery() string
}

// ErrKeyNotFound is returned when a requested key has no associated value.
var ErrKeyNotFound = ClientError("query: value for the provided key does not exist")

// ErrInvalidInfohash is returned when an info_hash value isn't 20 bytes.
var ErrInvalidInfohash = ClientError("provided invalid infohash")

// ErrInvalidQueryEscape is returned when a query string contains an invalid
// percent-escape.
var ErrInvalidQueryEscape = ClientError("invalid query escape")

// QueryParams parses a URL query into a map from lowercased key to its raw
// (already percent-decoded) value, plus the ordered list of info_hash
// values, with a couple of typed helpers layered on top. info_hash is the one key callers may repeat;
// every other key keeps only its last occurrence, matching the "last value
// wins" behavior of net/url.ParseQuery and of every tracker implementation
// this one is descended from.
type QueryParams struct {
	query      string
	params     map[string]string
	infoHashes []InfoHash
	peerIDs    []PeerID
}

// NewQueryParams parses a raw (undecoded) query string, as found after the
// '?' in a URL or as the URLData of a BEP 41 UDP option.
func NewQueryParams(query string) (*QueryParams, error) {
	qp := &QueryParams{
		query:  query,
		params: make(map[string]string),
	}

	for query != "" {
		var key string
		key, query, _ = strings.Cut(query, "&")
		if key == "" {
			continue
		}

		key, value, _ := strings.Cut(key, "=")

		key, err := url.QueryUnescape(key)
		if err != nil {
			return nil, ErrInvalidQueryEscape
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, ErrInvalidQueryEscape
		}

		switch strings.ToLower(key) {
		case "info_hash":
			if len(value) != 20 {
				return nil, ErrInvalidInfohash
			}
			qp.infoHashes = append(qp.infoHashes, InfoHashFromString(value))
		case "peer_id":
			if len(value) == 20 {
				qp.peerIDs = append(qp.peerIDs, PeerIDFromString(value))
			}
			qp.params["peer_id"] = value
		default:
			qp.params[strings.ToLower(key)] = value
		}
	}

	return qp, nil
}

// String implements Params.
func (qp *QueryParams) String(key string) (string, bool) {
	v, ok := qp.params[key]
	return v, ok
}

// Uint64 parses the named parameter as a uint64.
func (qp *QueryParams) Uint64(key string) (uint64, error) {
	str, ok := qp.params[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, ClientError("failed to parse parameter: " + key)
	}
	return v, nil
}

// InfoHashes returns every info_hash value the query carried, in the order
// they appeared.
func (qp *QueryParams) InfoHashes() []InfoHash { return qp.infoHashes }

// RawQuery implements Params.
func (qp *QueryParams) RawQuery() string { return qp.query }

// ParseURLData parses a request path and query as defined in BEP 41: a
// concatenated string of a URL's path and query parts, e.g.
// "/announce?port=1234". The UDP frontend uses this to parse the optional
// URL data carried in an announce or scrape's trailing option.
func ParseURLData(urlData string) (*QueryParams, error) {
	_, query, _ := strings.Cut(urlData, "?")
	return NewQueryParams(query)
}
