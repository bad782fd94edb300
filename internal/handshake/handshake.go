// Package handshake implements the secret and address exchange that opens
// every forwarded session.
//
// Wire format, in order:
//
//	Initiator → Responder   secret (raw bytes, one write, no framing)
//	Initiator → Responder   len(host) uint8 | host | port uint16 big-endian
//	Responder → Initiator   secret (raw bytes, one write), sent only after
//	                        the Responder has reached the destination
//
// The secret carries no length prefix, so both sides read exactly as many
// bytes as their own secret holds.  That keeps the exchange independent of
// how the transport happens to segment writes, and it never consumes
// relay payload that follows the proof.
package handshake

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"
	"syscall"

	"tlex/config"
	ncerr "tlex/internal/errors"
)

// Protocol steps, as reported in HandshakeError.Step.
const (
	StepSecret  = "secret"
	StepAddress = "address"
	StepProof   = "proof"
)

// ── Address frame ────────────────────────────────────────────────────

// EncodeEndpoint builds the address frame for ep.  Hosts that are empty or
// longer than 255 bytes of UTF-8 are refused before anything is sent.
func EncodeEndpoint(ep config.Endpoint) ([]byte, error) {
	host := []byte(ep.Host)
	switch {
	case len(host) == 0:
		return nil, ncerr.Handshake(StepAddress, ncerr.ErrEmptyHost)
	case len(host) > config.MaxHostLength:
		return nil, ncerr.Handshake(StepAddress, ncerr.ErrHostTooLong)
	case ep.Port < 0 || ep.Port > 0xFFFF:
		return nil, ncerr.Handshake(StepAddress, errors.New("port out of range"))
	}

	frame := make([]byte, 0, 1+len(host)+2)
	frame = append(frame, byte(len(host)))
	frame = append(frame, host...)
	frame = binary.BigEndian.AppendUint16(frame, uint16(ep.Port))
	return frame, nil
}

// DecodeEndpoint reads one address frame from r.  A stream that ends
// before the length byte yields ErrRejected.
func DecodeEndpoint(r io.Reader) (config.Endpoint, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = ncerr.ErrRejected
		}
		return config.Endpoint{}, ncerr.Handshake(StepAddress, err)
	}
	if n[0] == 0 {
		return config.Endpoint{}, ncerr.Handshake(StepAddress, ncerr.ErrEmptyHost)
	}

	buf := make([]byte, int(n[0])+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return config.Endpoint{}, ncerr.Handshake(StepAddress, truncated(err))
	}
	return config.Endpoint{
		Host: string(buf[:n[0]]),
		Port: int(binary.BigEndian.Uint16(buf[n[0]:])),
	}, nil
}

// ── Roles ────────────────────────────────────────────────────────────

// Initiate runs the client side: send the secret, send the address frame,
// then wait for the proof.  ErrRejected means the Responder closed
// without replying (wrong secret or unreachable destination);
// ErrSecretMismatch means it replied with different bytes.
func Initiate(rw io.ReadWriter, secret string, dst config.Endpoint) error {
	frame, err := EncodeEndpoint(dst)
	if err != nil {
		return err
	}
	if _, err := rw.Write([]byte(secret)); err != nil {
		return ncerr.Handshake(StepSecret, err)
	}
	if _, err := rw.Write(frame); err != nil {
		if peerClosed(err) {
			err = ncerr.ErrRejected
		}
		return ncerr.Handshake(StepAddress, err)
	}

	proof := make([]byte, len(secret))
	n, err := io.ReadFull(rw, proof)
	switch {
	case n == 0 && err != nil:
		if peerClosed(err) {
			err = ncerr.ErrRejected
		}
		return ncerr.Handshake(StepProof, err)
	case err != nil:
		return ncerr.Handshake(StepProof, ncerr.ErrSecretMismatch)
	}
	if !Equal(proof, secret) {
		return ncerr.Handshake(StepProof, ncerr.ErrSecretMismatch)
	}
	return nil
}

// Respond runs the server side up to the point where the destination
// must be dialled.  A wrong secret is rejected before any address byte
// is read.  The caller sends the proof with Confirm once the outbound
// leg is up, or closes the stream without replying.
func Respond(r io.Reader, secret string) (config.Endpoint, error) {
	got := make([]byte, len(secret))
	n, err := io.ReadFull(r, got)
	switch {
	case n == 0 && err != nil && len(secret) > 0:
		if errors.Is(err, io.EOF) {
			err = ncerr.ErrRejected
		}
		return config.Endpoint{}, ncerr.Handshake(StepSecret, err)
	case err != nil:
		return config.Endpoint{}, ncerr.Handshake(StepSecret, ncerr.ErrSecretMismatch)
	}
	if !Equal(got, secret) {
		return config.Endpoint{}, ncerr.Handshake(StepSecret, ncerr.ErrSecretMismatch)
	}
	return DecodeEndpoint(r)
}

// Confirm writes the proof: the shared secret, in a single write.
func Confirm(w io.Writer, secret string) error {
	if _, err := w.Write([]byte(secret)); err != nil {
		return ncerr.Handshake(StepProof, err)
	}
	return nil
}

// Equal compares got against secret in constant time.
func Equal(got []byte, secret string) bool {
	return subtle.ConstantTimeCompare(got, []byte(secret)) == 1
}

// peerClosed reports errors that mean the other side hung up.  A TCP
// peer that closes with our frame still unread answers with a reset.
func peerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
