package indexing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinaryDetector_IsBinaryByExtension(t *testing.T) {
	bd := NewBinaryDetector()

	tests := []struct {
		path   string
		binary bool
	}{
		{"/path/to/font.woff2", true},
		{"/path/to/image.png", true},
		{"/path/to/archive.zip", true},
		{"/path/to/binary.exe", true},
		{"/path/to/module.wasm", true},
		{"/path/to/bytecode.pyc", true},
		{"/path/to/db.sqlite", true},

		{"/path/to/source.go", false},
		{"/path/to/image.svg", false},
		{"/path/to/source.min.js", false},
		{"/path/to/source.map", false},
		{"/path/to/Makefile", false},

		{"/path/to/image.PNG", true},
		{"/path/to/source.GO", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.binary, bd.IsBinaryByExtension(tt.path))
		})
	}
}

func TestBinaryDetector_IsBinaryByContent(t *testing.T) {
	bd := NewBinaryDetector()

	tests := []struct {
		name    string
		content []byte
		binary  bool
	}{
		{"empty", nil, false},
		{"go source", []byte("package main\n\nfunc main() {}\n"), false},
		{"utf8 text", []byte("héllo wörld ünïcode\n"), false},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}, true},
		{"elf", []byte{0x7F, 0x45, 0x4C, 0x46, 0x02}, true},
		{"gzip", []byte{0x1F, 0x8B, 0x08}, true},
		{"nul bytes", append([]byte("text"), bytes.Repeat([]byte{0}, 10)...), true},
		{"control bytes", bytes.Repeat([]byte{0x01, 0x02, 'a'}, 20), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.binary, bd.IsBinaryByContent(tt.content))
		})
	}
}

func TestBinaryDetector_IsBinary(t *testing.T) {
	bd := NewBinaryDetector()
	assert.True(t, bd.IsBinary("logo.png", []byte("looks like text")))
	assert.True(t, bd.IsBinary("blob", []byte{0x7F, 0x45, 0x4C, 0x46}))
	assert.False(t, bd.IsBinary("main.go", []byte("package main")))
}

func TestIsGenerated(t *testing.T) {
	tests := []struct {
		name string
		head string
		want bool
	}{
		{"go generate", "// Code generated by protoc-gen-go. DO NOT EDIT.\npackage pb\n", true},
		{"facebook marker", "/**\n * @generated\n */\n", true},
		{"csharp", "//------\n// <auto-generated>\n//     tool\n", true},
		{"marker after header", "package a\n\n\n\n\n// Code generated later\n", false},
		{"plain", "package main\n\nfunc main() {}\n", false},
		{"single line", "DO NOT EDIT", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGenerated([]byte(tt.head)))
		})
	}
}
