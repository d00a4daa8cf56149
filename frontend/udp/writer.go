package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/torrtrack/torrtrack/bittorrent"
)

// WriteError writes the failure reason as a null-terminated string.
func WriteError(w io.Writer, txID []byte, err error) {
	// If the client wasn't at fault, acknowledge it.
	if _, ok := err.(bittorrent.ClientError); !ok {
		err = fmt.Errorf("internal error occurred: %s", err.Error())
	}

	var buf bytes.Buffer
	writeHeader(&buf, txID, errorActionID)
	buf.WriteString(err.Error())
	buf.WriteRune('\000')
	_, _ = w.Write(buf.Bytes())
}

// WriteAnnounce encodes an announce response according to BEP 15. v6Action
// selects the action ID and peer list used by the "old opentracker" IPv6
// extension, matching how the request was dispatched in handleRequest.
func WriteAnnounce(w io.Writer, txID []byte, resp *bittorrent.AnnounceResponse, v6Action bool) {
	var buf bytes.Buffer

	action := uint32(announceActionID)
	peers := resp.IPv4Peers
	if v6Action {
		action = announceV6ActionID
		peers = resp.IPv6Peers
	}

	writeHeader(&buf, txID, action)
	_ = binary.Write(&buf, binary.BigEndian, uint32(resp.Interval/time.Second))
	_ = binary.Write(&buf, binary.BigEndian, uint32(resp.Incomplete))
	_ = binary.Write(&buf, binary.BigEndian, uint32(resp.Complete))

	for _, peer := range peers {
		addr := peer.AddrPort.Addr()
		if v6Action {
			b := addr.As16()
			buf.Write(b[:])
		} else {
			b := addr.As4()
			buf.Write(b[:])
		}
		_ = binary.Write(&buf, binary.BigEndian, peer.AddrPort.Port())
	}

	_, _ = w.Write(buf.Bytes())
}

// WriteScrape encodes a scrape response according to BEP 15.
func WriteScrape(w io.Writer, txID []byte, resp *bittorrent.ScrapeResponse) {
	var buf bytes.Buffer

	writeHeader(&buf, txID, scrapeActionID)

	for _, scrape := range resp.Files {
		_ = binary.Write(&buf, binary.BigEndian, scrape.Complete)
		_ = binary.Write(&buf, binary.BigEndian, scrape.Snatches)
		_ = binary.Write(&buf, binary.BigEndian, scrape.Incomplete)
	}

	_, _ = w.Write(buf.Bytes())
}

// WriteConnectionID encodes a new connection response according to BEP 15.
func WriteConnectionID(w io.Writer, txID, connID []byte) {
	var buf bytes.Buffer

	writeHeader(&buf, txID, connectActionID)
	buf.Write(connID)

	_, _ = w.Write(buf.Bytes())
}

// writeHeader writes the action and transaction ID to the provided response
// buffer.
func writeHeader(w io.Writer, txID []byte, action uint32) {
	_ = binary.Write(w, binary.BigEndian, action)
	_, _ = w.Write(txID)
}
