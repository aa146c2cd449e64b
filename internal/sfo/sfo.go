// Package sfo reads PARAM.SFO metadata tables from PS3 disc images. Only the
// UTF-8 string entries are decoded; that covers TITLE_ID and TITLE, which is
// all the pipeline needs to derive the final artifact name.
package sfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFormat is returned when the payload is not a PSF table.
var ErrInvalidFormat = errors.New("sfo: invalid PARAM.SFO data")

// utf8Format is the data_fmt code for NUL-terminated UTF-8 string entries.
const utf8Format = 0x0204

var magic = []byte("\x00PSF")

const (
	headerSize     = 20
	indexEntrySize = 16
)

// Params holds the decoded string entries of a PARAM.SFO table.
type Params map[string]string

// TitleID returns the TITLE_ID entry, or "UNKNOWN" when absent.
func (p Params) TitleID() string {
	if id, ok := p["TITLE_ID"]; ok && id != "" {
		return id
	}

	return "UNKNOWN"
}

// Title returns the TITLE entry, or "Unknown" when absent.
func (p Params) Title() string {
	if title, ok := p["TITLE"]; ok && title != "" {
		return title
	}

	return "Unknown"
}

// Parse decodes a PARAM.SFO table. Non-string entries are skipped; malformed
// tables fail with ErrInvalidFormat rather than yielding partial data.
func Parse(data []byte) (Params, error) {
	if len(data) < headerSize || !bytes.Equal(data[0:4], magic) {
		return nil, ErrInvalidFormat
	}

	keyTableStart := int(binary.LittleEndian.Uint32(data[8:12]))
	dataTableStart := int(binary.LittleEndian.Uint32(data[12:16]))
	count := int(binary.LittleEndian.Uint32(data[16:20]))

	if keyTableStart > len(data) || dataTableStart > len(data) {
		return nil, fmt.Errorf("%w: table offsets out of range", ErrInvalidFormat)
	}

	params := make(Params, count)

	for i := 0; i < count; i++ {
		offset := headerSize + i*indexEntrySize
		if offset+indexEntrySize > len(data) {
			return nil, fmt.Errorf("%w: truncated index", ErrInvalidFormat)
		}

		keyOffset := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		dataFormat := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		dataLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		dataOffset := int(binary.LittleEndian.Uint32(data[offset+12 : offset+16]))

		keyStart := keyTableStart + keyOffset
		if keyStart > len(data) {
			return nil, fmt.Errorf("%w: key offset out of range", ErrInvalidFormat)
		}

		keyEnd := bytes.IndexByte(data[keyStart:], 0)
		if keyEnd < 0 {
			return nil, fmt.Errorf("%w: unterminated key", ErrInvalidFormat)
		}

		if dataFormat != utf8Format {
			continue
		}

		valueStart := dataTableStart + dataOffset
		if valueStart+dataLen > len(data) {
			return nil, fmt.Errorf("%w: value out of range", ErrInvalidFormat)
		}

		key := string(data[keyStart : keyStart+keyEnd])
		value := strings.TrimRight(string(data[valueStart:valueStart+dataLen]), "\x00")
		params[key] = value
	}

	return params, nil
}
