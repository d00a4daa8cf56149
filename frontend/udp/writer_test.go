package udp

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/torrtrack/torrtrack/bittorrent"
)

func TestWriteConnectionID(t *testing.T) {
	var buf bytes.Buffer
	txID := []byte{1, 2, 3, 4}
	connID := []byte{5, 6, 7, 8, 9, 10, 11, 12}

	WriteConnectionID(buf2writer{&buf}, txID, connID)

	require.Equal(t, uint32(connectActionID), binary.BigEndian.Uint32(buf.Bytes()[0:4]))
	require.Equal(t, txID, buf.Bytes()[4:8])
	require.Equal(t, connID, buf.Bytes()[8:16])
}

func TestWriteAnnounceIPv4(t *testing.T) {
	var buf bytes.Buffer
	resp := &bittorrent.AnnounceResponse{
		Interval:   30 * time.Second,
		Incomplete: 1,
		Complete:   2,
		IPv4Peers: []bittorrent.Peer{
			{AddrPort: netip.MustParseAddrPort("1.2.3.4:6881")},
		},
	}

	WriteAnnounce(buf2writer{&buf}, []byte{0, 0, 0, 1}, resp, false)

	body := buf.Bytes()[8:]
	require.EqualValues(t, 30, binary.BigEndian.Uint32(body[0:4]))
	require.EqualValues(t, 1, binary.BigEndian.Uint32(body[4:8]))
	require.EqualValues(t, 2, binary.BigEndian.Uint32(body[8:12]))
	require.Equal(t, []byte{1, 2, 3, 4}, body[12:16])
	require.EqualValues(t, 6881, binary.BigEndian.Uint16(body[16:18]))
}

func TestWriteErrorWritesClientErrorVerbatim(t *testing.T) {
	var buf bytes.Buffer
	WriteError(buf2writer{&buf}, []byte{0, 0, 0, 1}, bittorrent.ClientError("nope"))
	require.Contains(t, buf.String(), "nope")
}

type buf2writer struct{ b *bytes.Buffer }

func (w buf2writer) Write(p []byte) (int, error) { return w.b.Write(p) }
