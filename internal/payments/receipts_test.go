package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSequence struct {
	keys []string
	n    int64
}

func (f *fakeSequence) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.keys = append(f.keys, key)
	f.n++
	return f.n, nil
}

func (f *fakeSequence) ReceiptSequenceKey(day string) string {
	return "maquis:counter:receipt:" + day
}

func TestReceiptNumberFormat(t *testing.T) {
	seq := &fakeSequence{}
	issuer, err := NewReceiptIssuer(seq)
	require.NoError(t, err)
	issuer.nowFunc = func() time.Time {
		return time.Date(2026, 9, 1, 13, 30, 0, 0, time.UTC)
	}

	first, err := issuer.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PAY-260901-0001", first)

	second, err := issuer.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PAY-260901-0002", second)

	require.Len(t, seq.keys, 2)
	assert.Equal(t, "maquis:counter:receipt:260901", seq.keys[0])
}
