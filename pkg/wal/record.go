package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies the type of a WAL record.
type Kind byte

const (
	KindPut Kind = iota + 1
	KindDelete
	KindLeaseAcquire
	KindLeaseRenew
	KindLeaseRelease
)

// Record is a single decoded WAL entry.
type Record struct {
	Kind      Kind
	Namespace string
	CommitSeq uint64
	Payload   json.RawMessage
}

// body is the on-disk JSON shape of a record's payload, checksummed
// and then sandwiched behind the length/checksum/kind framing in
// Encode/decodeFrame.
type body struct {
	Namespace string          `json:"namespace"`
	CommitSeq uint64          `json:"commit_seq"`
	Payload   json.RawMessage `json:"payload"`
}

// frameHeaderSize is the number of bytes preceding the kind+body
// payload: the length prefix and the checksum.
const frameHeaderSize = 8

// Encode serializes r into the on-disk frame: uint32 length (of kind
// byte + body), uint32 checksum (over the JSON body only), kind byte,
// JSON body.
func Encode(r Record) ([]byte, error) {
	b, err := json.Marshal(body{Namespace: r.Namespace, CommitSeq: r.CommitSeq, Payload: r.Payload})
	if err != nil {
		return nil, fmt.Errorf("wal: encoding record body: %w", err)
	}
	checksum := uint32(xxhash.Sum64(b))

	frame := make([]byte, frameHeaderSize+1+len(b))
	binary.BigEndian.PutUint32(frame[0:4], uint32(1+len(b)))
	binary.BigEndian.PutUint32(frame[4:8], checksum)
	frame[8] = byte(r.Kind)
	copy(frame[9:], b)
	return frame, nil
}

// decodeBody parses the kind byte and JSON body that follow the
// length/checksum header, verifying checksum against the JSON body
// bytes only (the kind byte is not covered by the checksum).
func decodeBody(checksum uint32, kindAndBody []byte) (Record, error) {
	if len(kindAndBody) < 1 {
		return Record{}, fmt.Errorf("wal: truncated record frame")
	}
	kind := Kind(kindAndBody[0])
	bodyBytes := kindAndBody[1:]
	if uint32(xxhash.Sum64(bodyBytes)) != checksum {
		return Record{}, errChecksumMismatch
	}
	var b body
	if err := json.Unmarshal(bodyBytes, &b); err != nil {
		return Record{}, fmt.Errorf("wal: decoding record body: %w", err)
	}
	return Record{Kind: kind, Namespace: b.Namespace, CommitSeq: b.CommitSeq, Payload: b.Payload}, nil
}
