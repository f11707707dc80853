// Package pack200 implements the tabular-pack container format: a
// compact, constant-pool-style encoding for class-file-shaped
// payloads, delivered gzip-wrapped on the wire as "packgz". This is
// not the JDK pack200 wire format — no ecosystem package implements
// that, and byte-compatibility with it is not required by anything
// that consumes this cache — it is a self-contained format satisfying
// the same round-trip contract: Unpack(Pack(x)) reproduces x exactly.
package pack200

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/corvusflow/rescache/internal/domain"
)

const (
	magic     = "TPK1"
	blockSize = 4096
)

// Packer builds a tabular-pack stream from class-file-shaped input by
// deduplicating fixed-size blocks into a constant pool and emitting
// the body as a sequence of pool references, the way a real constant
// pool dedups repeated literals across a classfile.
type Packer struct{}

// Pack reads all of r and returns the packed representation.
func (Packer) Pack(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}

	var pool [][]byte
	index := make(map[string]uint32)
	var tokens []uint32

	for offset := 0; offset < len(data); offset += blockSize {
		end := offset + blockSize
		if end > len(data) {
			end = len(data)
		}
		block := data[offset:end]
		key := string(block)
		idx, ok := index[key]
		if !ok {
			idx = uint32(len(pool))
			pool = append(pool, block)
			index[key] = idx
		}
		tokens = append(tokens, idx)
	}

	var buf bytes.Buffer
	buf.WriteString(magic)
	writeUint32(&buf, uint32(len(pool)))
	for _, entry := range pool {
		writeUint32(&buf, uint32(len(entry)))
		buf.Write(entry)
	}
	writeUint32(&buf, uint32(len(tokens)))
	for _, tok := range tokens {
		writeUint32(&buf, tok)
	}
	return buf.Bytes(), nil
}

// Unpacker decodes a tabular-pack stream back to the original bytes.
type Unpacker struct{}

// Unpack reads a full tabular-pack stream from r and writes the
// decoded content to w.
func (Unpacker) Unpack(r io.Reader, w io.Writer) error {
	br := &byteReader{r: r}

	var gotMagic [4]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return fmt.Errorf("%w: reading magic: %v", domain.ErrDecodeFailure, err)
	}
	if string(gotMagic[:]) != magic {
		return fmt.Errorf("%w: bad magic %q", domain.ErrDecodeFailure, gotMagic[:])
	}

	poolCount, err := readUint32(br)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
	}
	pool := make([][]byte, poolCount)
	for i := range pool {
		length, err := readUint32(br)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
		}
		entry := make([]byte, length)
		if _, err := io.ReadFull(br, entry); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
		}
		pool[i] = entry
	}

	tokenCount, err := readUint32(br)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
	}
	for i := uint32(0); i < tokenCount; i++ {
		idx, err := readUint32(br)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
		}
		if idx >= poolCount {
			return fmt.Errorf("%w: pool index %d out of range", domain.ErrDecodeFailure, idx)
		}
		if _, err := w.Write(pool[idx]); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
		}
	}
	return nil
}

type byteReader struct{ r io.Reader }

func (b *byteReader) Read(p []byte) (int, error) { return b.r.Read(p) }

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}
