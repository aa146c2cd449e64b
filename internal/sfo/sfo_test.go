package sfo_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/italolelis/redump_downloader/internal/sfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sfoField struct {
	key    string
	value  []byte
	format uint16
}

// buildTable assembles a minimal PARAM.SFO binary table.
func buildTable(fields []sfoField) []byte {
	const (
		headerSize     = 20
		indexEntrySize = 16
		utf8Format     = 0x0204
	)

	keyTableStart := headerSize + len(fields)*indexEntrySize

	var keyTable, dataTable bytes.Buffer

	index := make([]byte, 0, len(fields)*indexEntrySize)

	for _, f := range fields {
		entry := make([]byte, indexEntrySize)
		binary.LittleEndian.PutUint16(entry[0:2], uint16(keyTable.Len()))
		binary.LittleEndian.PutUint16(entry[2:4], f.format)
		binary.LittleEndian.PutUint32(entry[4:8], uint32(len(f.value)+1))
		binary.LittleEndian.PutUint32(entry[8:12], uint32(len(f.value)+1))
		binary.LittleEndian.PutUint32(entry[12:16], uint32(dataTable.Len()))
		index = append(index, entry...)

		keyTable.WriteString(f.key)
		keyTable.WriteByte(0)
		dataTable.Write(f.value)
		dataTable.WriteByte(0)
	}

	var out bytes.Buffer

	out.WriteString("\x00PSF")
	binary.Write(&out, binary.LittleEndian, uint32(0x00000101))
	binary.Write(&out, binary.LittleEndian, uint32(keyTableStart))
	binary.Write(&out, binary.LittleEndian, uint32(keyTableStart+keyTable.Len()))
	binary.Write(&out, binary.LittleEndian, uint32(len(fields)))
	out.Write(index)
	out.Write(keyTable.Bytes())
	out.Write(dataTable.Bytes())

	return out.Bytes()
}

func testTable() []byte {
	return buildTable([]sfoField{
		{key: "APP_VER", value: []byte("01.00"), format: 0x0204},
		{key: "ATTRIBUTE", value: []byte{0x01, 0x00, 0x00, 0x00}, format: 0x0404},
		{key: "TITLE", value: []byte("Example Game"), format: 0x0204},
		{key: "TITLE_ID", value: []byte("BLUS12345"), format: 0x0204},
	})
}

func TestParse(t *testing.T) {
	params, err := sfo.Parse(testTable())
	require.NoError(t, err)

	assert.Equal(t, "BLUS12345", params.TitleID())
	assert.Equal(t, "Example Game", params.Title())
	assert.Equal(t, "01.00", params["APP_VER"])
	assert.NotContains(t, params, "ATTRIBUTE", "non-string entries are skipped")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("\x00PSX padding padding ")},
		{"truncated index", testTable()[:24]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sfo.Parse(tt.data)
			assert.ErrorIs(t, err, sfo.ErrInvalidFormat)
		})
	}
}

func TestParams_Defaults(t *testing.T) {
	params := sfo.Params{}
	assert.Equal(t, "UNKNOWN", params.TitleID())
	assert.Equal(t, "Unknown", params.Title())
}

// fakeExecutor stands in for the archive tool: it drops the given table into
// the -o directory, or fails.
type fakeExecutor struct {
	table []byte
	err   error
	args  []string
}

func (f *fakeExecutor) Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error {
	f.args = args

	if f.err != nil {
		return f.err
	}

	if f.table == nil {
		return nil
	}

	for _, arg := range args {
		if dir, ok := strings.CutPrefix(arg, "-o"); ok {
			return os.WriteFile(filepath.Join(dir, "PARAM.SFO"), f.table, 0o644)
		}
	}

	return errors.New("no output directory argument")
}

func TestExtractor_ExtractParams(t *testing.T) {
	executor := &fakeExecutor{table: testTable()}
	extractor := sfo.NewExtractor("7z", sfo.WithExecutor(executor))

	dir := t.TempDir()

	params, err := extractor.ExtractParams(context.Background(), "/games/example.iso", dir)
	require.NoError(t, err)
	assert.Equal(t, "BLUS12345", params.TitleID())

	assert.Equal(t, []string{"e", "/games/example.iso", "PS3_GAME/PARAM.SFO", "-o" + dir, "-y"}, executor.args)
	assert.NoFileExists(t, filepath.Join(dir, "PARAM.SFO"), "scratch file is removed after parsing")
}

func TestExtractor_ExtractParams_ToolFailure(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("cannot open image")}
	extractor := sfo.NewExtractor("7z", sfo.WithExecutor(executor))

	_, err := extractor.ExtractParams(context.Background(), "/games/example.iso", t.TempDir())
	assert.ErrorContains(t, err, "cannot open image")
}

func TestExtractor_ExtractParams_NothingExtracted(t *testing.T) {
	// The tool exits zero but produces no PARAM.SFO (entry absent from the
	// image).
	extractor := sfo.NewExtractor("7z", sfo.WithExecutor(&fakeExecutor{}))

	_, err := extractor.ExtractParams(context.Background(), "/games/example.iso", t.TempDir())
	assert.Error(t, err)
}
