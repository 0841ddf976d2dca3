package tokens

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagescan/pkg/contract"
)

func drain(t *testing.T, r contract.ManifestReader) ([]contract.ManifestRecord, []error) {
	t.Helper()
	var recs []contract.ManifestRecord
	var errs []error
	for i := 0; i < 10000; i++ {
		rec, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return recs, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	t.Fatal("reader did not terminate")
	return nil, nil
}

func TestNextInFileOrder(t *testing.T) {
	r := New(nil).NewReader(strings.NewReader("data alpha\nother beta\n"))
	recs, errs := drain(t, r)
	require.Empty(t, errs)
	assert.Equal(t, []contract.ManifestRecord{
		{Folder: "data", Stem: "alpha"},
		{Folder: "other", Stem: "beta"},
	}, recs)
}

func TestNextIgnoresLineBoundaries(t *testing.T) {
	src := "data\talpha other\n\n  beta\r\nthird\ngamma"
	recs, errs := drain(t, New(nil).NewReader(strings.NewReader(src)))
	require.Empty(t, errs)
	require.Len(t, recs, 3)
	assert.Equal(t, contract.ManifestRecord{Folder: "other", Stem: "beta"}, recs[1])
	assert.Equal(t, contract.ManifestRecord{Folder: "third", Stem: "gamma"}, recs[2])
}

func TestNextEmptySource(t *testing.T) {
	r := New(nil).NewReader(strings.NewReader(""))
	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	// EndOfInput 之后保持 EOF
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestNextDanglingTokenIsEndOfInput(t *testing.T) {
	recs, errs := drain(t, New(nil).NewReader(strings.NewReader("data alpha lonely")))
	require.Empty(t, errs)
	assert.Len(t, recs, 1)
}

func TestNextManyRecords(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 450; i++ {
		fmt.Fprintf(&b, "dir%d stem%d\n", i, i)
	}
	recs, errs := drain(t, New(nil).NewReader(strings.NewReader(b.String())))
	require.Empty(t, errs)
	require.Len(t, recs, 450)
	assert.Equal(t, "dir449", recs[449].Folder)
}

func TestNextRejectsOversizedField(t *testing.T) {
	long := strings.Repeat("x", contract.DefaultMaxFieldBytes+1)
	src := "ok one " + long + " two after three"
	recs, errs := drain(t, New(nil).NewReader(strings.NewReader(src)))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], contract.ErrFieldTooLong)
	assert.ErrorIs(t, errs[0], contract.ErrInvalidInput)
	// 超长记录被消费，后续记录照常产出
	assert.Equal(t, []contract.ManifestRecord{
		{Folder: "ok", Stem: "one"},
		{Folder: "after", Stem: "three"},
	}, recs)
}

func TestMaxFieldBytesOptions(t *testing.T) {
	long := strings.Repeat("y", 500)
	zero := 0
	recs, errs := drain(t, New(&Options{MaxFieldBytes: &zero}).NewReader(strings.NewReader(long+" s")))
	require.Empty(t, errs)
	require.Len(t, recs, 1)

	four := 4
	_, errs = drain(t, New(&Options{MaxFieldBytes: &four}).NewReader(strings.NewReader("abcde s")))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], contract.ErrFieldTooLong)
}

func TestTokenBeyondBufferIsFatal(t *testing.T) {
	zero := 0
	r := New(&Options{MaxFieldBytes: &zero, BufSize: 16}).NewReader(strings.NewReader(strings.Repeat("z", 64) + " s"))
	_, err := r.Next(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
	assert.False(t, contract.IsRecordError(err))
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.Contains(t, err.Error(), "buf_size (16 bytes)")
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestNextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).NewReader(strings.NewReader("a b")).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
