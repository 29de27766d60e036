// Package natpmp implements the NAT-PMP client state machine of spec.md
// §4.3/§6: byte-exact, network-order wire packets exchanged with the
// default gateway at port 5351 to maintain a public port mapping.
package natpmp

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/applog"
)

// Port is the well-known NAT-PMP server port on the gateway.
const Port = 5351

// ResultCode mirrors natpmp.hpp's ResultCode enum.
type ResultCode uint16

const (
	ResultCodeSuccess            ResultCode = 0
	ResultCodeUnsupportedVersion ResultCode = 1
	ResultCodeNotAuthorized      ResultCode = 2
	ResultCodeNetworkFailure     ResultCode = 3
	ResultCodeOutOfResources     ResultCode = 4
	ResultCodeUnsupportedOpcode  ResultCode = 5
	ResultCodeInvalid            ResultCode = 0xFFFF
)

func (r ResultCode) String() string {
	switch r {
	case ResultCodeSuccess:
		return "Success"
	case ResultCodeUnsupportedVersion:
		return "Unsupported version"
	case ResultCodeNotAuthorized:
		return "Not Authorized/Refused"
	case ResultCodeNetworkFailure:
		return "Network Failure"
	case ResultCodeOutOfResources:
		return "Out of resources"
	default:
		return "Unsupported opcode"
	}
}

const (
	opPublicAddress    = 0
	opMapUDP           = 1
	opMapTCP           = 2
	opPublicAddressRes = 128
	opMapUDPRes        = 129
	opMapTCPRes        = 130
)

// publicAddressRequest: u8 version=0, u8 op=0.
func encodePublicAddressRequest() []byte {
	return []byte{0, opPublicAddress}
}

// publicAddressResponse: u8 version, u8 op, u16 result, u32 seconds, u32 addr.
type publicAddressResponse struct {
	Op      byte
	Result  ResultCode
	Seconds uint32
	Addr    [4]byte
}

func decodePublicAddressResponse(b []byte) (publicAddressResponse, error) {
	if len(b) < 12 {
		return publicAddressResponse{}, fmt.Errorf("short public address response (%d bytes): %w", len(b), apperrors.Protocol)
	}
	var r publicAddressResponse
	r.Op = b[1]
	r.Result = ResultCode(binary.BigEndian.Uint16(b[2:4]))
	r.Seconds = binary.BigEndian.Uint32(b[4:8])
	copy(r.Addr[:], b[8:12])
	return r, nil
}

// newPortMappingRequest: u8 version=0, u8 op, u16 reserved=0, u16 private_port,
// u16 public_port, u32 lifetime.
func encodeNewPortMappingRequest(op byte, privatePort, publicPort uint16, lifetime uint32) []byte {
	buf := make([]byte, 12)
	buf[0] = 0
	buf[1] = op
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], privatePort)
	binary.BigEndian.PutUint16(buf[6:8], publicPort)
	binary.BigEndian.PutUint32(buf[8:12], lifetime)
	return buf
}

// newPortMappingResponse: u8 version, u8 op, u16 result, u32 seconds,
// u16 private_port, u16 mapped_public_port, u32 lifetime.
type newPortMappingResponse struct {
	Op               byte
	Result           ResultCode
	Seconds          uint32
	PrivatePort      uint16
	MappedPublicPort uint16
	MappingLifetimeS uint32
}

func decodeNewPortMappingResponse(b []byte) (newPortMappingResponse, error) {
	if len(b) < 16 {
		return newPortMappingResponse{}, fmt.Errorf("short port mapping response (%d bytes): %w", len(b), apperrors.Protocol)
	}
	var r newPortMappingResponse
	r.Op = b[1]
	r.Result = ResultCode(binary.BigEndian.Uint16(b[2:4]))
	r.Seconds = binary.BigEndian.Uint32(b[4:8])
	r.PrivatePort = binary.BigEndian.Uint16(b[8:10])
	r.MappedPublicPort = binary.BigEndian.Uint16(b[10:12])
	r.MappingLifetimeS = binary.BigEndian.Uint32(b[12:16])
	return r, nil
}

// Mapping is the result of a successful NAT-PMP negotiation.
type Mapping struct {
	PublicAddr       net.IP
	MappedPublicPort uint16
	LifetimeS        uint32
}

// Client drives the NAT-PMP request/response/renew cycle against one
// gateway for one TCP port (spec.md §4.3 only maps TCP, op=2).
type Client struct {
	Gateway     net.IP
	PrivatePort uint16
	LifetimeS   uint32

	MappedCallback func(Mapping)

	conn *net.UDPConn
}

const requestTimeout = 250 * time.Millisecond
const maxTimeout = 30 * time.Second
const maxRetries = 9 // 10 attempts; the wait doubles from 250ms and is held at maxTimeout from the 8th attempt on

// Run executes one full cycle: locate gateway (already supplied), request
// the public address, then request a TCP port mapping, renewing at half
// the granted lifetime until ctx is cancelled (spec.md §4.3 "NAT-PMP
// client (C9)").
func (c *Client) Run(ctx context.Context) error {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: c.Gateway, Port: Port})
	if err != nil {
		return fmt.Errorf("dial gateway %s: %w: %w", c.Gateway, err, apperrors.TransientIO)
	}
	c.conn = conn
	defer conn.Close()

	for {
		mapping, err := c.negotiateOnce()
		if err != nil {
			return err
		}
		if c.MappedCallback != nil {
			c.MappedCallback(mapping)
		}

		renewIn := time.Duration(mapping.LifetimeS) * time.Second / 2
		if renewIn <= 0 {
			renewIn = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(renewIn):
		}
	}
}

func (c *Client) negotiateOnce() (Mapping, error) {
	addrResp, err := requestWithRetry(c.conn, encodePublicAddressRequest(), 12, decodePublicAddressResponse)
	if err != nil {
		return Mapping{}, err
	}
	if addrResp.Result != ResultCodeSuccess {
		return Mapping{}, fmt.Errorf("public address request: %s: %w", addrResp.Result, apperrors.Protocol)
	}

	mapResp, err := c.requestMapping()
	if err != nil {
		return Mapping{}, err
	}
	return Mapping{
		PublicAddr:       net.IP(addrResp.Addr[:]),
		MappedPublicPort: mapResp.MappedPublicPort,
		LifetimeS:        mapResp.MappingLifetimeS,
	}, nil
}

func (c *Client) requestMapping() (newPortMappingResponse, error) {
	req := encodeNewPortMappingRequest(opMapTCP, c.PrivatePort, c.PrivatePort, c.LifetimeS)
	resp, err := requestWithRetry(c.conn, req, 16, decodeNewPortMappingResponse)
	if err != nil {
		return newPortMappingResponse{}, err
	}
	if resp.Result != ResultCodeSuccess {
		return newPortMappingResponse{}, fmt.Errorf("port mapping request: %s: %w", resp.Result, apperrors.Protocol)
	}
	return resp, nil
}

// requestWithRetry sends req and waits up to requestTimeout for a reply,
// doubling the timeout (capped at maxTimeout) on each timed-out retry, for
// up to maxRetries retries (spec.md §4.3:
// "wait ≤250 ms for PublicAddressResponse; retry up to N; backoff doubles").
// Go methods cannot be generic, so this is a free function parameterized
// over the response type rather than a method on *Client.
func requestWithRetry[T any](conn *net.UDPConn, req []byte, minLen int, decode func([]byte) (T, error)) (T, error) {
	var zero T
	timeout := requestTimeout
	buf := make([]byte, 64)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if _, err := conn.Write(req); err != nil {
			return zero, fmt.Errorf("send NAT-PMP request: %w: %w", err, apperrors.TransientIO)
		}
		conn.SetReadDeadline(time.Now().Add(timeout))
		n, err := conn.Read(buf)
		if err != nil {
			applog.ReportAppError("NAT-PMP request timed out", fmt.Errorf("%w: %w", err, apperrors.TransientIO))
			timeout *= 2
			if timeout > maxTimeout {
				timeout = maxTimeout
			}
			continue
		}
		if n < minLen {
			continue
		}
		return decode(bytes.Clone(buf[:n]))
	}
	return zero, fmt.Errorf("NAT-PMP request exhausted %d retries: %w", maxRetries, apperrors.TransientIO)
}
