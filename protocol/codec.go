package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// BatchItem is one message inside a batch frame's pre-compression image.
type BatchItem struct {
	Api     uint16
	Payload []byte
}

// Encoder produces single-message or batch frames. A batch frame is
// always compressed (Batched implies Compressed).
type Encoder struct{}

func NewEncoder() (*Encoder, error) { return &Encoder{}, nil }

func (e *Encoder) Close() error { return nil }

// EncodeSingle returns envelope + api id + optionally-compressed payload.
func (e *Encoder) EncodeSingle(api uint16, payload []byte, compressed bool) (frame []byte, _ error) {
	body := payload
	if compressed {
		zw := encoders.get()
		body = zw.EncodeAll(payload, nil)
		encoders.put(zw)
	}
	hdr := EncodeEnvelope(len(body), compressed, false)
	out := make([]byte, 0, len(hdr)+2+len(body))
	out = append(out, hdr...)
	out = AppendApi(out, api)
	out = append(out, body...)
	return out, nil
}

// EncodeBatch compresses a batch pre-image of items into a single frame
// (Batched=1, no per-message header fields).
func (e *Encoder) EncodeBatch(items []BatchItem) ([]byte, error) {
	var pre bytes.Buffer
	var uvBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(uvBuf[:], uint64(len(items)))
	pre.Write(uvBuf[:n])
	for _, it := range items {
		var a [2]byte
		binary.BigEndian.PutUint16(a[:], it.Api)
		pre.Write(a[:])
		n = binary.PutUvarint(uvBuf[:], uint64(len(it.Payload)))
		pre.Write(uvBuf[:n])
		pre.Write(it.Payload)
	}
	zw := encoders.get()
	body := zw.EncodeAll(pre.Bytes(), nil)
	encoders.put(zw)
	hdr := EncodeEnvelope(len(body), true, true)
	out := make([]byte, 0, len(hdr)+len(body))
	out = append(out, hdr...)
	out = append(out, body...)
	return out, nil
}

// Parser decodes frames out of an accumulating byte stream, decompressing
// batch frames and invoking onMessage once per contained message.
type Parser struct{}

func NewParser() (*Parser, error) { return &Parser{}, nil }

func (p *Parser) Close() error { return nil }

var ErrIncomplete = errors.New("protocol: incomplete frame")

// Parse consumes as many complete frames from buf as it can, returning
// the number of bytes consumed. onMessage may return an error to stop
// parsing early.
func (p *Parser) Parse(buf []byte, onMessage func(api uint16, payload []byte) error) (consumed int, _ error) {
	i := 0
	for {
		c, length, compressed, batched, err := DecodeEnvelope(buf[i:])
		if err != nil {
			if errors.Is(err, errHeaderTooShort) {
				return i, nil // not enough bytes yet for even the envelope
			}
			return i, err
		}
		if !batched {
			if len(buf[i+c:]) < 2+length {
				return i, nil
			}
			api := binary.BigEndian.Uint16(buf[i+c : i+c+2])
			msg := buf[i+c+2 : i+c+2+length]
			if compressed {
				dz := decoders.get()
				out, derr := dz.DecodeAll(msg, nil)
				decoders.put(dz)
				if derr != nil {
					return i, derr
				}
				msg = out
			}
			if err := onMessage(api, msg); err != nil {
				return i, err
			}
			i += c + 2 + length
			continue
		}
		if len(buf[i+c:]) < length {
			return i, nil
		}
		payload := buf[i+c : i+c+length]
		i += c + length
		dz := decoders.get()
		out, derr := dz.DecodeAll(payload, nil)
		decoders.put(dz)
		if derr != nil {
			return i, derr
		}
		r := bytes.NewReader(out)
		num, err := binary.ReadUvarint(r)
		if err != nil {
			return i, err
		}
		for j := uint64(0); j < num; j++ {
			var ab [2]byte
			if _, err := io.ReadFull(r, ab[:]); err != nil {
				return i, err
			}
			api := binary.BigEndian.Uint16(ab[:])
			ln, err := binary.ReadUvarint(r)
			if err != nil {
				return i, err
			}
			if ln == 0 {
				if err := onMessage(api, nil); err != nil {
					return i, err
				}
				continue
			}
			msg := make([]byte, ln)
			if _, err := io.ReadFull(r, msg); err != nil {
				return i, err
			}
			if err := onMessage(api, msg); err != nil {
				return i, err
			}
		}
	}
}
