package payments

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
)

// receiptSequenceTTL keeps a day's counter around long enough for late
// settlements near midnight.
const receiptSequenceTTL = 48 * time.Hour

type sequenceSource interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	ReceiptSequenceKey(day string) string
}

// ReceiptSource issues receipt numbers for payment rows.
type ReceiptSource interface {
	Next(ctx context.Context) (string, error)
}

// ReceiptIssuer produces sequential receipt numbers of the form
// PAY-YYMMDD-NNNN, one sequence per calendar day.
type ReceiptIssuer struct {
	seq     sequenceSource
	nowFunc func() time.Time
}

// NewReceiptIssuer wires the issuer to its counter store.
func NewReceiptIssuer(seq sequenceSource) (*ReceiptIssuer, error) {
	if seq == nil {
		return nil, fmt.Errorf("receipt sequence source required")
	}
	return &ReceiptIssuer{seq: seq, nowFunc: time.Now}, nil
}

// Next reserves the next receipt number for today.
func (r *ReceiptIssuer) Next(ctx context.Context) (string, error) {
	day := r.nowFunc().Format("060102")
	n, err := r.seq.IncrWithTTL(ctx, r.seq.ReceiptSequenceKey(day), receiptSequenceTTL)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve receipt number")
	}
	return fmt.Sprintf("PAY-%s-%04d", day, n), nil
}
