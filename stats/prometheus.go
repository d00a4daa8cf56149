package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultPrometheusReportingInterval = time.Second

func init() {
	prometheus.MustRegister(
		promConnectionsTotal,
		promAnnouncesTotal,
		promScrapesTotal,
		promTorrentsCount,
		promSeedersCount,
		promLeechersCount,
		promCompletedTotal,
		promJournalLength,
	)
}

var (
	promConnectionsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "torrtrack_stats_connections_total",
		Help: "The number of connections handled, by protocol",
	}, []string{"protocol"})

	promAnnouncesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "torrtrack_stats_announces_total",
		Help: "The number of announces handled, by address family",
	}, []string{"address_family"})

	promScrapesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "torrtrack_stats_scrapes_total",
		Help: "The number of scrapes handled, by address family",
	}, []string{"address_family"})

	promTorrentsCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "torrtrack_stats_torrents_count",
		Help: "The running total of tracked torrents",
	})

	promSeedersCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "torrtrack_stats_seeders_count",
		Help: "The running total of tracked seeders",
	})

	promLeechersCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "torrtrack_stats_leechers_count",
		Help: "The running total of tracked leechers",
	})

	promCompletedTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "torrtrack_stats_completed_total",
		Help: "The running total of recorded download completions",
	})

	promJournalLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "torrtrack_stats_journal_length",
		Help: "The number of pending entries in a policy table's writeback journal",
	}, []string{"table"})
)

// populateProm copies the current snapshot into the registered collectors.
// It is called periodically by the background loop started in New, so
// scraping Prometheus never needs to touch the Aggregator's lock directly.
func (a *Aggregator) populateProm() {
	snap := a.Snapshot()

	promConnectionsTotal.WithLabelValues("http").Set(float64(snap.ConnectionsHTTP))
	promConnectionsTotal.WithLabelValues("udp").Set(float64(snap.ConnectionsUDP))

	promAnnouncesTotal.WithLabelValues("IPv4").Set(float64(snap.AnnouncesIPv4))
	promAnnouncesTotal.WithLabelValues("IPv6").Set(float64(snap.AnnouncesIPv6))

	promScrapesTotal.WithLabelValues("IPv4").Set(float64(snap.ScrapesIPv4))
	promScrapesTotal.WithLabelValues("IPv6").Set(float64(snap.ScrapesIPv6))

	promTorrentsCount.Set(float64(snap.Torrents))
	promSeedersCount.Set(float64(snap.Seeders))
	promLeechersCount.Set(float64(snap.Leechers))
	promCompletedTotal.Set(float64(snap.Completed))

	promJournalLength.WithLabelValues("whitelist").Set(float64(snap.WhitelistJournalLen))
	promJournalLength.WithLabelValues("blacklist").Set(float64(snap.BlacklistJournalLen))
	promJournalLength.WithLabelValues("keys").Set(float64(snap.KeysJournalLen))
	promJournalLength.WithLabelValues("users").Set(float64(snap.UsersJournalLen))
	promJournalLength.WithLabelValues("torrents").Set(float64(snap.TorrentsJournalLen))
}
