package importer

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// encodingProbeSize is how much of the input is sampled for detection.
const encodingProbeSize = 10000

// detectEncoding inspects a prefix sample and picks a text encoding.
// UTF-16 is recognized by its BOM, otherwise a clean UTF-8 sample wins
// and anything else falls back to Windows-1252.
func detectEncoding(sample []byte) encoding.Encoding {
	switch {
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	}
	if utf8.Valid(trimPartialRune(sample)) {
		return unicode.UTF8
	}
	return charmap.Windows1252
}

// trimPartialRune drops trailing bytes that may be a rune cut by the
// probe boundary, so a truncated sample is not misjudged as invalid.
func trimPartialRune(sample []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(sample) > 0; i++ {
		r, size := utf8.DecodeLastRune(sample)
		if r != utf8.RuneError || size != 1 {
			return sample
		}
		sample = sample[:len(sample)-1]
	}
	return sample
}

// decodeReader wraps r so undecodable bytes are replaced rather than
// failing the read.
func decodeReader(r io.Reader, enc encoding.Encoding) io.Reader {
	return transform.NewReader(r, enc.NewDecoder())
}
