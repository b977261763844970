package importer

import (
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func TestDetectEncoding(t *testing.T) {
	if enc := detectEncoding([]byte("sku,name\nA1,Widget\n")); enc != unicode.UTF8 {
		t.Errorf("plain ASCII detected as %v, want UTF-8", enc)
	}
	if enc := detectEncoding([]byte("sku,name\nA1,Gl\xc3\xbchbirne\n")); enc != unicode.UTF8 {
		t.Errorf("valid UTF-8 detected as %v, want UTF-8", enc)
	}
	// 0xE9 is é in Windows-1252 but invalid standalone UTF-8.
	if enc := detectEncoding([]byte("sku,name\nA1,Caf\xe9\n")); enc != charmap.Windows1252 {
		t.Errorf("legacy bytes detected as %v, want Windows-1252", enc)
	}
}

func TestDetectEncodingUTF16BOM(t *testing.T) {
	be := detectEncoding([]byte{0xFE, 0xFF, 0x00, 's'})
	if be == unicode.UTF8 || be == charmap.Windows1252 {
		t.Errorf("UTF-16 BE BOM detected as %v", be)
	}
	le := detectEncoding([]byte{0xFF, 0xFE, 's', 0x00})
	if le == unicode.UTF8 || le == charmap.Windows1252 {
		t.Errorf("UTF-16 LE BOM detected as %v", le)
	}
}

func TestDetectEncodingTruncatedRune(t *testing.T) {
	// A multi-byte rune cut at the probe boundary must not force the
	// Windows-1252 fallback.
	sample := []byte("sku,name\nA1,Glühbirne")
	truncated := sample[:len(sample)-1]
	if enc := detectEncoding(truncated); enc != unicode.UTF8 {
		t.Errorf("truncated UTF-8 sample detected as %v, want UTF-8", enc)
	}
}

func TestTrimPartialRune(t *testing.T) {
	whole := []byte("héllo")
	if got := trimPartialRune(whole); string(got) != "héllo" {
		t.Errorf("complete input trimmed to %q", got)
	}

	cut := whole[:len(whole)-4] // ends mid-rune
	if got := trimPartialRune(cut); string(got) != "h" {
		t.Errorf("partial rune not trimmed, got %q", got)
	}
}

func TestDecodeReaderWindows1252(t *testing.T) {
	raw := []byte("Caf\xe9")
	decoded, err := io.ReadAll(decodeReader(strings.NewReader(string(raw)), charmap.Windows1252))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(decoded) != "Café" {
		t.Errorf("decoded = %q, want %q", decoded, "Café")
	}
}
