package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"medindex/internal/fault"
)

var (
	pdfHead  = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>")
	pngHead  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
	jpegHead = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
)

func newTestGate() *Gate {
	return NewGate(50*1024*1024, nil)
}

func TestGate_Check(t *testing.T) {
	g := newTestGate()

	tests := []struct {
		name     string
		filename string
		size     int64
		content  []byte
		wantKind fault.Kind
	}{
		{name: "valid pdf", filename: "report.pdf", size: int64(len(pdfHead)), content: pdfHead},
		{name: "valid png", filename: "scan.png", size: int64(len(pngHead)), content: pngHead},
		{name: "valid jpeg", filename: "xray.jpeg", size: int64(len(jpegHead)), content: jpegHead},
		{name: "empty content", filename: "report.pdf", size: 0, content: nil, wantKind: fault.InvalidInput},
		{name: "oversize", filename: "report.pdf", size: 51 * 1024 * 1024, content: pdfHead, wantKind: fault.FileTooLarge},
		{name: "disallowed extension", filename: "setup.exe", size: 10, content: []byte("data"), wantKind: fault.UnsupportedType},
		{name: "no extension", filename: "report", size: 10, content: pdfHead, wantKind: fault.UnsupportedType},
		{name: "traversal filename", filename: "../../etc/passwd.pdf", size: int64(len(pdfHead)), content: pdfHead, wantKind: fault.MaliciousFilename},
		{name: "script filename", filename: "<script>x.pdf", size: int64(len(pdfHead)), content: pdfHead, wantKind: fault.MaliciousFilename},
		{name: "event handler filename", filename: "onload=alert.png", size: int64(len(pngHead)), content: pngHead, wantKind: fault.MaliciousFilename},
		{name: "pe executable as pdf", filename: "invoice.pdf", size: 64, content: append([]byte("MZ\x90\x00"), make([]byte, 60)...), wantKind: fault.ExecutableContent},
		{name: "elf executable as png", filename: "scan.png", size: 64, content: append([]byte{0x7F, 'E', 'L', 'F'}, make([]byte, 60)...), wantKind: fault.ExecutableContent},
		{name: "mach-o executable as jpeg", filename: "scan.jpeg", size: 8, content: []byte{0xFE, 0xED, 0xFA, 0xCF, 0, 0, 0, 0}, wantKind: fault.ExecutableContent},
		{name: "mime mismatch png as pdf", filename: "report.pdf", size: int64(len(pngHead)), content: pngHead, wantKind: fault.MimeMismatch},
		{name: "mime mismatch text as jpg", filename: "scan.jpg", size: 11, content: []byte("hello world"), wantKind: fault.MimeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.filename, tt.size, tt.content)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, fault.IsKind(err, tt.wantKind), "got %v, want kind %s", err, tt.wantKind)
		})
	}
}

func TestNewGate_CustomAllowList(t *testing.T) {
	g := NewGate(1024, []string{".pdf"})

	assert.NoError(t, g.Check("a.pdf", int64(len(pdfHead)), pdfHead))
	err := g.Check("a.png", int64(len(pngHead)), pngHead)
	assert.True(t, fault.IsKind(err, fault.UnsupportedType))
}
