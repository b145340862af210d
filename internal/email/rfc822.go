package email

import (
	"bufio"
	"bytes"
	"fmt"
	nettextproto "net/textproto"
	"sort"
	"strings"

	"github.com/emersion/go-message/textproto"
)

// Header is a parsed header block, keyed by canonical field name
type Header map[string][]string

// ParseHeader parses a raw header block as returned by BODY[HEADER]
func ParseHeader(raw []byte) (Header, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty header block")
	}

	// the reader needs the terminating blank line
	if !bytes.HasSuffix(raw, []byte("\r\n\r\n")) && !bytes.HasSuffix(raw, []byte("\n\n")) {
		buf := make([]byte, 0, len(raw)+4)
		buf = append(buf, bytes.TrimRight(raw, "\r\n")...)
		raw = append(buf, "\r\n\r\n"...)
	}

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	header := make(Header)
	fields := h.Fields()
	for fields.Next() {
		key := nettextproto.CanonicalMIMEHeaderKey(fields.Key())
		header[key] = append(header[key], fields.Value())
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("header block has no fields")
	}

	return header, nil
}

// Get returns the first value of a field
func (h Header) Get(key string) string {
	values := h[nettextproto.CanonicalMIMEHeaderKey(key)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// FlattenHeader renders one "Name: value" line per value, names sorted
func FlattenHeader(h Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		for _, v := range h[k] {
			lines = append(lines, k+": "+v)
		}
	}
	return lines
}

// BuildRFC822 joins header lines and body into a full message
func BuildRFC822(h Header, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(FlattenHeader(h), "\r\n"))
	buf.WriteString("\r\n\r\n")
	buf.Write(body)
	return buf.Bytes()
}
