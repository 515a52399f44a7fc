package indexing

import (
	"bytes"
	"path/filepath"
	"strings"
)

// BinaryDetector classifies files from their name and first bytes.
// Binary files are still listed but never handed to an extractor.
type BinaryDetector struct {
	binaryExtensions map[string]bool
}

func NewBinaryDetector() *BinaryDetector {
	extensions := map[string]bool{
		// Fonts
		".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,

		// Images
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
		".ico": true, ".webp": true, ".tiff": true, ".tif": true,
		".svg": false, // XML

		// Archives
		".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
		".7z": true, ".rar": true, ".jar": true, ".war": true, ".nupkg": true,

		// Executables and objects
		".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
		".o": true, ".obj": true, ".bin": true, ".wasm": true, ".pdb": true,

		// Media
		".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wav": true,
		".flac": true, ".ogg": true, ".webm": true,

		// Documents
		".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
		".ppt": true, ".pptx": true,

		// Databases
		".db": true, ".sqlite": true, ".sqlite3": true,

		// Bytecode and serialized objects
		".pyc": true, ".pyo": true, ".class": true, ".pickle": true, ".pkl": true,

		".map": false, // source maps are JSON
	}
	return &BinaryDetector{binaryExtensions: extensions}
}

// IsBinaryByExtension checks the extension only. Minified assets are text.
func (bd *BinaryDetector) IsBinaryByExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	return bd.binaryExtensions[ext]
}

// IsBinaryByContent checks magic numbers, then the share of NUL and
// control bytes in the first 512 bytes.
func (bd *BinaryDetector) IsBinaryByContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sample := content
	if len(sample) > sniffSize {
		sample = sample[:sniffSize]
	}

	for _, magic := range magicNumbers {
		if bytes.HasPrefix(sample, magic) {
			return true
		}
	}

	nullBytes, control := 0, 0
	for _, b := range sample {
		if b == 0 {
			nullBytes++
		}
		// Bytes >= 0x80 may be UTF-8 and are not counted.
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' && b != '\f' {
			control++
		}
	}
	if nullBytes > len(sample)/100 {
		return true
	}
	return control > len(sample)*30/100
}

var magicNumbers = [][]byte{
	{0x1F, 0x8B},             // gzip
	{0x50, 0x4B, 0x03, 0x04}, // zip
	{0x50, 0x4B, 0x05, 0x06}, // empty zip
	{0x89, 0x50, 0x4E, 0x47}, // png
	{0xFF, 0xD8, 0xFF},       // jpeg
	{0x47, 0x49, 0x46, 0x38}, // gif
	{0x25, 0x50, 0x44, 0x46}, // pdf
	{0x7F, 0x45, 0x4C, 0x46}, // elf
	{0x4D, 0x5A},             // dos/windows executable
	{0xCA, 0xFE, 0xBA, 0xBE}, // mach-o fat binary, java class
	{0xCF, 0xFA, 0xED, 0xFE}, // mach-o 64
	{0x00, 0x61, 0x73, 0x6D}, // wasm
	{0x77, 0x4F, 0x46, 0x46}, // woff
	{0x77, 0x4F, 0x46, 0x32}, // woff2
}

// IsBinary combines the extension and content checks.
func (bd *BinaryDetector) IsBinary(path string, head []byte) bool {
	if bd.IsBinaryByExtension(path) {
		return true
	}
	return bd.IsBinaryByContent(head)
}

// IsGenerated reports whether head carries a generated-code marker in its
// first few lines.
func IsGenerated(head []byte) bool {
	const headerLines = 5
	rest := head
	for i := 0; i < headerLines && len(rest) > 0; i++ {
		line := rest
		if j := bytes.IndexByte(rest, '\n'); j >= 0 {
			line, rest = rest[:j], rest[j+1:]
		} else {
			rest = nil
		}
		for _, marker := range generatedMarkers {
			if bytes.Contains(line, []byte(marker)) {
				return true
			}
		}
	}
	return false
}
