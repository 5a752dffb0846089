/*
	This file supports serialization/deserialization and compression of chunk values.
*/

package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the format of compression for storing data.
// NOTE: Should be no more than 8 (3 bits) of compression types.
type Compression uint8

const (
	Uncompressed Compression = iota
	Snappy
	LZ4
	Zstd
	Gzip
)

var compressionNames = map[Compression]string{
	Uncompressed: "none",
	Snappy:       "snappy",
	LZ4:          "lz4",
	Zstd:         "zstd",
	Gzip:         "gzip",
}

func (compress Compression) String() string {
	if name, found := compressionNames[compress]; found {
		return name
	}
	return "unknown"
}

// ParseCompression returns the Compression for a name like "zstd".  An empty name is
// Uncompressed.
func ParseCompression(name string) (Compression, error) {
	if name == "" {
		return Uncompressed, nil
	}
	for c, n := range compressionNames {
		if n == name {
			return c, nil
		}
	}
	return Uncompressed, fmt.Errorf("unknown compression %q", name)
}

func (compress Compression) MarshalJSON() ([]byte, error) {
	return json.Marshal(compress.String())
}

func (compress *Compression) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	c, err := ParseCompression(s)
	if err != nil {
		return err
	}
	*compress = c
	return nil
}

// Checksum is the type of checksum employed for error checking stored data.
// NOTE: Should be no more than 4 (2 bits) of checksum types.
type Checksum uint8

const (
	NoChecksum Checksum = iota
	CRC32
)

func (checksum Checksum) String() string {
	switch checksum {
	case NoChecksum:
		return "none"
	case CRC32:
		return "crc32"
	default:
		return "unknown"
	}
}

// ParseChecksum returns the Checksum for "none", "crc32" or "".
func ParseChecksum(name string) (Checksum, error) {
	switch name {
	case "", "none":
		return NoChecksum, nil
	case "crc32":
		return CRC32, nil
	}
	return NoChecksum, fmt.Errorf("unknown checksum %q", name)
}

func (checksum Checksum) MarshalJSON() ([]byte, error) {
	return json.Marshal(checksum.String())
}

func (checksum *Checksum) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	c, err := ParseChecksum(s)
	if err != nil {
		return err
	}
	*checksum = c
	return nil
}

// SerializationFormat is a single byte combining both compression and checksum methods.
type SerializationFormat uint8

func EncodeSerializationFormat(compress Compression, checksum Checksum) SerializationFormat {
	a := (uint8(compress) & 0x07) << 5
	b := (uint8(checksum) & 0x03) << 3
	return SerializationFormat(a | b)
}

func DecodeSerializationFormat(s SerializationFormat) (compress Compression, checksum Checksum) {
	compress = Compression(uint8(s) >> 5)
	checksum = Checksum((uint8(s) >> 3) & 0x03)
	return
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll calls.
func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func compressData(data []byte, compress Compression) (out []byte, used Compression, err error) {
	used = compress
	switch compress {
	case Uncompressed:
		out = data
	case Snappy:
		out = snappy.Encode(nil, data)
	case LZ4:
		out = make([]byte, lz4.CompressBlockBound(len(data))+4)
		binary.LittleEndian.PutUint32(out[0:4], uint32(len(data)))
		var outSize int
		outSize, err = lz4.CompressBlock(data, out[4:], nil)
		if err != nil {
			return
		}
		if outSize == 0 {
			// incompressible data is stored as is
			out, used = data, Uncompressed
			return
		}
		out = out[:4+outSize]
	case Zstd:
		var enc *zstd.Encoder
		if enc, _, err = zstdCodecs(); err != nil {
			return
		}
		out = enc.EncodeAll(data, nil)
	case Gzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err = zw.Write(data); err != nil {
			return
		}
		if err = zw.Close(); err != nil {
			return
		}
		out = buf.Bytes()
	default:
		err = fmt.Errorf("illegal compression (%s) during serialization", compress)
	}
	return
}

func uncompressData(cdata []byte, compress Compression) (data []byte, err error) {
	switch compress {
	case Uncompressed:
		data = cdata
	case Snappy:
		data, err = snappy.Decode(nil, cdata)
	case LZ4:
		if len(cdata) < 4 {
			return nil, fmt.Errorf("lz4 value too short (%d bytes)", len(cdata))
		}
		origSize := binary.LittleEndian.Uint32(cdata[0:4])
		data = make([]byte, int(origSize))
		var n int
		if n, err = lz4.UncompressBlock(cdata[4:], data); err == nil && n != int(origSize) {
			err = fmt.Errorf("lz4 uncompressed %d bytes, expected %d", n, origSize)
		}
	case Zstd:
		var dec *zstd.Decoder
		if _, dec, err = zstdCodecs(); err != nil {
			return
		}
		data, err = dec.DecodeAll(cdata, nil)
	case Gzip:
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(bytes.NewReader(cdata)); err != nil {
			return nil, fmt.Errorf("can't uncompress gzip data: %w", err)
		}
		data, err = io.ReadAll(zr)
		zr.Close()
	default:
		err = fmt.Errorf("illegal compression format (%d) in deserialization", compress)
	}
	return
}

// SerializeData serializes a slice of bytes using optional compression and checksum.
// The first byte of the result records the compression and checksum actually used.
func SerializeData(data []byte, compress Compression, checksum Checksum) ([]byte, error) {
	byteData, used, err := compressData(data, compress)
	if err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	buffer.WriteByte(byte(EncodeSerializationFormat(used, checksum)))

	switch checksum {
	case NoChecksum:
	case CRC32:
		var crc [4]byte
		binary.LittleEndian.PutUint32(crc[:], crc32.ChecksumIEEE(byteData))
		buffer.Write(crc[:])
	default:
		return nil, fmt.Errorf("illegal checksum (%s) in SerializeData()", checksum)
	}

	// Note the actual data is written last, after any checksum so we don't have to
	// worry about length when deserializing.
	buffer.Write(byteData)
	return buffer.Bytes(), nil
}

// DeserializeData deserializes a slice of bytes using stored compression and checksum.
// If uncompress parameter is false, the data is not uncompressed.
func DeserializeData(s []byte, uncompress bool) (data []byte, compress Compression, err error) {
	if len(s) == 0 {
		err = fmt.Errorf("cannot deserialize empty value")
		return
	}
	var checksum Checksum
	compress, checksum = DecodeSerializationFormat(SerializationFormat(s[0]))
	cdata := s[1:]

	switch checksum {
	case NoChecksum:
	case CRC32:
		if len(cdata) < 4 {
			err = fmt.Errorf("value too short to hold crc32 checksum")
			return
		}
		storedCrc32 := binary.LittleEndian.Uint32(cdata[0:4])
		cdata = cdata[4:]
		if crcChecksum := crc32.ChecksumIEEE(cdata); crcChecksum != storedCrc32 {
			err = fmt.Errorf("bad checksum.  Stored %x got %x", storedCrc32, crcChecksum)
			return
		}
	default:
		err = fmt.Errorf("illegal checksum in deserializing data")
		return
	}

	if !uncompress {
		data = cdata
		return
	}
	data, err = uncompressData(cdata, compress)
	return
}
