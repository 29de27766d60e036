package natpmp

import (
	"encoding/binary"
	"testing"
)

func TestEncodePublicAddressRequestIsByteExact(t *testing.T) {
	req := encodePublicAddressRequest()
	if len(req) != 2 || req[0] != 0 || req[1] != opPublicAddress {
		t.Fatalf("unexpected encoding: %v", req)
	}
}

func TestDecodePublicAddressResponse(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0
	buf[1] = opPublicAddressRes
	binary.BigEndian.PutUint16(buf[2:4], uint16(ResultCodeSuccess))
	binary.BigEndian.PutUint32(buf[4:8], 123)
	copy(buf[8:12], []byte{203, 0, 113, 7})

	resp, err := decodePublicAddressResponse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != ResultCodeSuccess || resp.Seconds != 123 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Addr != [4]byte{203, 0, 113, 7} {
		t.Fatalf("unexpected address: %v", resp.Addr)
	}
}

func TestDecodePublicAddressResponseShortBuffer(t *testing.T) {
	_, err := decodePublicAddressResponse(make([]byte, 4))
	if err == nil {
		t.Fatal("expected error on short buffer")
	}
}

func TestEncodeNewPortMappingRequestLayout(t *testing.T) {
	buf := encodeNewPortMappingRequest(opMapTCP, 41000, 41000, 60)
	if len(buf) != 12 {
		t.Fatalf("expected 12-byte request, got %d", len(buf))
	}
	if buf[0] != 0 || buf[1] != opMapTCP {
		t.Fatalf("unexpected version/op: %v", buf[:2])
	}
	if binary.BigEndian.Uint16(buf[4:6]) != 41000 {
		t.Fatalf("unexpected private_port field: %v", buf[4:6])
	}
	if binary.BigEndian.Uint16(buf[6:8]) != 41000 {
		t.Fatalf("unexpected public_port field: %v", buf[6:8])
	}
	if binary.BigEndian.Uint32(buf[8:12]) != 60 {
		t.Fatalf("unexpected lifetime field: %v", buf[8:12])
	}
}

func TestDecodeNewPortMappingResponse(t *testing.T) {
	buf := make([]byte, 16)
	buf[1] = opMapTCPRes
	binary.BigEndian.PutUint16(buf[2:4], uint16(ResultCodeSuccess))
	binary.BigEndian.PutUint32(buf[4:8], 10)
	binary.BigEndian.PutUint16(buf[8:10], 41000)
	binary.BigEndian.PutUint16(buf[10:12], 41000)
	binary.BigEndian.PutUint32(buf[12:16], 60)

	resp, err := decodeNewPortMappingResponse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if resp.MappedPublicPort != 41000 || resp.MappingLifetimeS != 60 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestResultCodeStrings(t *testing.T) {
	cases := map[ResultCode]string{
		ResultCodeSuccess:            "Success",
		ResultCodeUnsupportedVersion: "Unsupported version",
		ResultCodeNotAuthorized:      "Not Authorized/Refused",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Fatalf("ResultCode(%d).String() = %q, want %q", code, got, want)
		}
	}
}
