package console

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagescan/pkg/contract"
)

func page(data string) contract.PageReadEvent {
	return contract.PageReadEvent{Data: []byte(data)}
}

func TestCharFormat(t *testing.T) {
	var buf bytes.Buffer
	o, err := New(&buf, nil)
	require.NoError(t, err)
	require.NoError(t, o.Probe("./data/alpha_1"))
	require.NoError(t, o.Page(page("abcdef")))
	require.NoError(t, o.Probe("./data/alpha_2"))
	require.NoError(t, o.Flush())
	assert.Equal(t, "./data/alpha_1\nd\n./data/alpha_2\n", buf.String())
}

func TestHexFormatAndOffset(t *testing.T) {
	var buf bytes.Buffer
	off := 0
	o, err := New(&buf, &Options{ProbeOffset: &off, Format: "hex", HideProbes: true})
	require.NoError(t, err)
	require.NoError(t, o.Probe("./ignored_1"))
	require.NoError(t, o.Page(page("\x07xyz")))
	assert.Equal(t, "07\n", buf.String())
}

func TestShortPageReportsDash(t *testing.T) {
	var buf bytes.Buffer
	o, err := New(&buf, &Options{HideProbes: true})
	require.NoError(t, err)
	require.NoError(t, o.Page(page("ab")))
	require.NoError(t, o.Page(page("")))
	assert.Equal(t, "-\n-\n", buf.String())
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	neg := -1
	_, err = New(&bytes.Buffer{}, &Options{ProbeOffset: &neg})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(&bytes.Buffer{}, &Options{Format: "octal"})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestWriteFailureSurfaces(t *testing.T) {
	o, err := New(failWriter{}, nil)
	require.NoError(t, err)
	require.NoError(t, o.Probe("./d/s_1")) // 仍在缓冲中
	assert.Error(t, o.Page(page("abcd")))
}
