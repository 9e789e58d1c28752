package protocol

import (
	"encoding/binary"
	"errors"
)

// Frame envelope: a 1-byte flag field followed by a varint body length.
//
//	byte 0:      flagCompressed | flagBatched (flagBatched implies flagCompressed)
//	byte 1..N:   uvarint body length
//
// A varint length outgrows the old fixed-width short/long header split
// used elsewhere in this family of wire formats: small bodies cost a
// single length byte, and there is no hard frame-size ceiling to test
// for or fall back from.
const (
	flagCompressed byte = 1 << 0
	flagBatched    byte = 1 << 1
)

var (
	errHeaderTooShort                = errors.New("protocol: header too short")
	errFlagsBatchedWithoutCompressed = errors.New("protocol: batched flag set without compressed flag")
)

// EncodeEnvelope returns the flag byte plus varint length prefix for a
// body of the given length.
func EncodeEnvelope(length int, compressed, batched bool) []byte {
	if batched {
		compressed = true
	}
	var flags byte
	if compressed {
		flags |= flagCompressed
	}
	if batched {
		flags |= flagBatched
	}
	buf := make([]byte, 1, 1+binary.MaxVarintLen64)
	buf[0] = flags
	buf = appendUvarint(buf, uint64(length))
	return buf
}

// DecodeEnvelope decodes a flag byte + varint length prefix, returning the
// bytes consumed, the body length, and the compressed/batched flags.
func DecodeEnvelope(b []byte) (consumed int, length int, compressed, batched bool, _ error) {
	if len(b) < 1 {
		return 0, 0, false, false, errHeaderTooShort
	}
	flags := b[0]
	compressed = flags&flagCompressed != 0
	batched = flags&flagBatched != 0
	if batched && !compressed {
		return 0, 0, false, false, errFlagsBatchedWithoutCompressed
	}
	n, nread := binary.Uvarint(b[1:])
	if nread <= 0 {
		return 0, 0, false, false, errHeaderTooShort
	}
	return 1 + nread, int(n), compressed, batched, nil
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

// AppendApi appends a big-endian api id to dst.
func AppendApi(dst []byte, api uint16) []byte {
	var a [2]byte
	binary.BigEndian.PutUint16(a[:], api)
	return append(dst, a[:]...)
}

// ReadApi reads a big-endian api id from the front of b.
func ReadApi(b []byte) (api uint16, consumed int, _ error) {
	if len(b) < 2 {
		return 0, 0, errHeaderTooShort
	}
	api = binary.BigEndian.Uint16(b[:2])
	return api, 2, nil
}
