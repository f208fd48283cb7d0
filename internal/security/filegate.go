// Package security implements the file security gate applied to every upload
// before any extraction work. Checks short-circuit on the first failure and
// the gate never writes anything, so a rejected upload leaves no artifact.
package security

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"medindex/internal/fault"
)

// mimeByExtension maps each allowed extension to the MIME type the file
// content must sniff as.
var mimeByExtension = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
}

// maliciousFilenamePatterns flags traversal sequences, script/XSS markers,
// data URIs and event-handler tokens in uploaded filenames.
var maliciousFilenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`\.\.\\`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)data:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
}

// executableMagics are known executable header signatures: PE, ELF, and the
// 32/64-bit Mach-O magic numbers in both byte orders.
var executableMagics = [][]byte{
	{'M', 'Z'},
	{0x7F, 'E', 'L', 'F'},
	{0xFE, 0xED, 0xFA, 0xCE},
	{0xCE, 0xFA, 0xED, 0xFE},
	{0xFE, 0xED, 0xFA, 0xCF},
	{0xCF, 0xFA, 0xED, 0xFE},
}

// headProbeSize is how many leading bytes are inspected for signatures.
const headProbeSize = 1024

// Gate validates uploaded files against size, type and content rules.
type Gate struct {
	maxSize int64
	allowed map[string]string
}

// NewGate builds a gate with the given size limit and extension allow-list.
// Extensions outside the known MIME mapping are ignored; an empty list
// allows every known extension.
func NewGate(maxSize int64, extensions []string) *Gate {
	allowed := make(map[string]string)
	if len(extensions) == 0 {
		for ext, mime := range mimeByExtension {
			allowed[ext] = mime
		}
	} else {
		for _, ext := range extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if mime, ok := mimeByExtension[ext]; ok {
				allowed[ext] = mime
			}
		}
	}
	return &Gate{maxSize: maxSize, allowed: allowed}
}

// MaxSize returns the configured size limit in bytes.
func (g *Gate) MaxSize() int64 { return g.maxSize }

// Check runs the validation chain over an upload, short-circuiting on the
// first failure. The executable-signature scan runs before the MIME sniff so
// that executable content is reported as such rather than as a generic
// mismatch: content wins over the declared type.
func (g *Gate) Check(filename string, size int64, content []byte) error {
	if len(content) == 0 {
		return fault.New(fault.InvalidInput, "file is empty or unreadable")
	}
	if size > g.maxSize {
		return fault.Newf(fault.FileTooLarge, "file size %d bytes exceeds limit of %d bytes", size, g.maxSize)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	expectedMIME, ok := g.allowed[ext]
	if !ok {
		return fault.Newf(fault.UnsupportedType, "unsupported file type %q", ext)
	}

	for _, p := range maliciousFilenamePatterns {
		if p.MatchString(filename) {
			return fault.New(fault.MaliciousFilename, "filename contains potentially malicious patterns")
		}
	}

	head := content
	if len(head) > headProbeSize {
		head = head[:headProbeSize]
	}
	for _, magic := range executableMagics {
		if bytes.HasPrefix(head, magic) {
			return fault.New(fault.ExecutableContent, "file starts with an executable signature")
		}
	}

	if detected := mimetype.Detect(head); !detected.Is(expectedMIME) {
		return fault.Newf(fault.MimeMismatch, "expected %s for %s, detected %s", expectedMIME, ext, detected.String())
	}

	return nil
}
