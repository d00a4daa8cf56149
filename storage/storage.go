// Package storage defines the interface a swarm store must implement, plus
// the errors and metrics shared by every implementation.
package storage

import (
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
	"github.com/torrtrack/torrtrack/pkg/stop"
)

// ErrResourceDoesNotExist is returned by delete-shaped methods when the
// requested swarm or peer does not exist.
var ErrResourceDoesNotExist = bittorrent.ClientError("resource does not exist")

// PeerStore abstracts the storing and querying of a swarm's peers, so that
// it can be backed by different data structures.
type PeerStore interface {
	// PutSeeder adds a seeder to the swarm identified by infoHash.
	PutSeeder(infoHash bittorrent.InfoHash, p bittorrent.Peer) error

	// DeleteSeeder removes a seeder from the swarm identified by infoHash.
	//
	// Returns ErrResourceDoesNotExist if the swarm or peer does not exist.
	DeleteSeeder(infoHash bittorrent.InfoHash, p bittorrent.Peer) error

	// PutLeecher adds a leecher to the swarm identified by infoHash.
	PutLeecher(infoHash bittorrent.InfoHash, p bittorrent.Peer) error

	// DeleteLeecher removes a leecher from the swarm identified by infoHash.
	//
	// Returns ErrResourceDoesNotExist if the swarm or peer does not exist.
	DeleteLeecher(infoHash bittorrent.InfoHash, p bittorrent.Peer) error

	// GraduateLeecher promotes a leecher to a seeder in the swarm identified
	// by infoHash. If the peer is not already present as a leecher, it is
	// added as a seeder and no error is returned.
	GraduateLeecher(infoHash bittorrent.InfoHash, p bittorrent.Peer) error

	// AnnouncePeers makes a best effort to return up to numWant peers from
	// the swarm identified by infoHash, all of the same address family as p.
	//
	// If seeder is true, the returned peers should skew toward leechers;
	// if false, they should skew toward seeders.
	AnnouncePeers(infoHash bittorrent.InfoHash, seeder bool, numWant int, p bittorrent.Peer) (peers []bittorrent.Peer, err error)

	// ScrapeSwarm returns the seeder/leecher/snatch counts of the swarm
	// identified by infoHash, for the given address family.
	ScrapeSwarm(infoHash bittorrent.InfoHash, af bittorrent.AddressFamily) bittorrent.Scrape

	// CollectGarbage deletes all peers that have not announced since cutoff.
	//
	// This must be safe to call while other methods on this interface are
	// executing concurrently.
	CollectGarbage(cutoff time.Time) error

	stop.Stopper
}
