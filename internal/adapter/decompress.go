package adapter

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
)

const maxDecompressedBytes = 50 << 20 // 50MB

// decompress inflates a response body according to Content-Encoding.
// Supports gzip/br/zstd/deflate; on any failure the raw data is passed
// through so the caller still sees the upstream bytes.
func decompress(data []byte, contentEncoding string) []byte {
	switch strings.ToLower(contentEncoding) {
	case "gzip":
		return decompressGzip(data)
	case "br":
		return decompressBrotli(data)
	case "zstd":
		return decompressZstd(data)
	case "deflate":
		return decompressDeflate(data)
	case "":
		// 隐式 gzip 检测
		if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
			return decompressGzip(data)
		}
		return data
	default:
		log.Warnf("adapter: unsupported Content-Encoding %q, passing through raw body", contentEncoding)
		return data
	}
}

func decompressGzip(data []byte) []byte {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		log.Warnf("adapter: failed to create gzip reader: %v", err)
		return data
	}
	defer gz.Close()
	return readDecompressed(gz, data)
}

func decompressBrotli(data []byte) []byte {
	return readDecompressed(brotli.NewReader(bytes.NewReader(data)), data)
}

func decompressZstd(data []byte) []byte {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		log.Warnf("adapter: failed to create zstd reader: %v", err)
		return data
	}
	defer decoder.Close()
	return readDecompressed(decoder, data)
}

func decompressDeflate(data []byte) []byte {
	reader := flate.NewReader(bytes.NewReader(data))
	defer reader.Close()
	return readDecompressed(reader, data)
}

// readDecompressed drains the decompressor, falling back to the raw bytes
// on error or when the inflated body exceeds the size cap.
func readDecompressed(r io.Reader, raw []byte) []byte {
	decompressed, err := io.ReadAll(io.LimitReader(r, maxDecompressedBytes+1))
	if err != nil {
		log.Warnf("adapter: failed to decompress response body: %v", err)
		return raw
	}
	if len(decompressed) > maxDecompressedBytes {
		log.Warnf("adapter: decompressed response too large (%d bytes), keeping raw body", len(decompressed))
		return raw
	}
	return decompressed
}
