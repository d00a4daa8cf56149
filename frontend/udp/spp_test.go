package udp

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSPPHeader(client netip.Addr, clientPort uint16, proxy netip.Addr, proxyPort uint16, payload []byte) []byte {
	buf := make([]byte, sppHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], sppMagic)
	copy(buf[2:18], client.As16())
	copy(buf[18:34], proxy.As16())
	binary.BigEndian.PutUint16(buf[34:36], clientPort)
	binary.BigEndian.PutUint16(buf[36:38], proxyPort)
	copy(buf[38:], payload)
	return buf
}

func TestParseSPPHeaderIPv4(t *testing.T) {
	client := netip.MustParseAddr("192.168.1.100")
	proxy := netip.MustParseAddr("10.0.0.1")
	payload := []byte{1, 2, 3, 4}

	data := buildSPPHeader(client, 12345, proxy, 443, payload)

	header, offset, found, err := parseSPPHeader(data)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, client, header.clientAddr)
	require.Equal(t, proxy, header.proxyAddr)
	require.Equal(t, uint16(12345), header.clientPort)
	require.Equal(t, uint16(443), header.proxyPort)
	require.Equal(t, payload, data[offset:])
}

func TestParseSPPHeaderIPv6(t *testing.T) {
	client := netip.MustParseAddr("2001:db8::1")
	proxy := netip.MustParseAddr("2001:db8::2")

	data := buildSPPHeader(client, 54321, proxy, 8080, nil)

	header, _, found, err := parseSPPHeader(data)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, client, header.clientAddr)
	require.Equal(t, proxy, header.proxyAddr)
}

func TestParseSPPHeaderNotPresent(t *testing.T) {
	_, _, found, err := parseSPPHeader([]byte{0, 0, 4, 0x17, 0x27, 0x10, 0x19, 0x80})
	require.NoError(t, err)
	require.False(t, found)
}

func TestParseSPPHeaderNotPresentTooShortForMagic(t *testing.T) {
	_, _, found, err := parseSPPHeader([]byte{0x56})
	require.NoError(t, err)
	require.False(t, found)
}

func TestParseSPPHeaderMalformedTruncated(t *testing.T) {
	data := make([]byte, 10)
	binary.BigEndian.PutUint16(data[0:2], sppMagic)

	_, _, found, err := parseSPPHeader(data)
	require.Equal(t, errMalformedSPPHeader, err)
	require.False(t, found)
}

func TestHasSPPMagic(t *testing.T) {
	require.True(t, hasSPPMagic([]byte{0x56, 0xEC}))
	require.True(t, hasSPPMagic([]byte{0x56, 0xEC, 0, 0}))
	require.False(t, hasSPPMagic([]byte{0, 0}))
	require.False(t, hasSPPMagic(nil))
}
