package writer

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/pkg/log"
)

func batch(start, rows int64) domain.PendingAppend {
	return domain.PendingAppend{StartOffset: start, ExpectedOffset: start + rows, RowCount: rows}
}

func TestNewValidator(t *testing.T) {
	c := NewCounters()
	tests := []struct {
		g          domain.DeliveryGuarantee
		streamType ports.StreamType
		offset     int64
	}{
		{domain.AtLeastOnce, ports.DefaultStream, ports.NoOffset},
		{domain.ExactlyOnce, ports.CommittedStream, 42},
	}

	for _, tt := range tests {
		t.Run(tt.g.String(), func(t *testing.T) {
			v := NewValidator(tt.g, c, log.NewNoopLogger())
			if v.Guarantee() != tt.g {
				t.Errorf("Guarantee() = %v", v.Guarantee())
			}
			if v.StreamType() != tt.streamType {
				t.Errorf("StreamType() = %v, want %v", v.StreamType(), tt.streamType)
			}
			if got := v.AppendOffset(42); got != tt.offset {
				t.Errorf("AppendOffset(42) = %d, want %d", got, tt.offset)
			}
		})
	}
}

func TestAtLeastOnceValidator(t *testing.T) {
	c := NewCounters()
	v := NewAtLeastOnceValidator(c, log.NewNoopLogger())

	if err := v.Validate(batch(0, 3), 0, nil); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	err := v.Validate(batch(3, 4), 0, errBoom)
	if !errors.Is(err, domain.ErrAppendFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("Validate() error = %v, want ErrAppendFailed wrapping cause", err)
	}

	s := c.Snapshot()
	if s.RecordsAppended != 3 || s.AppendedSinceCheckpoint != 3 || s.SendErrors != 4 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestExactlyOnceValidator(t *testing.T) {
	tests := []struct {
		name         string
		p            domain.PendingAppend
		offset       int64
		err          error
		wantErr      error
		wantAppended int64
		wantErrors   int64
		wantDup      int64
	}{
		{
			name:         "matching offset",
			p:            batch(10, 5),
			offset:       10,
			wantAppended: 5,
		},
		{
			name:    "already exists is tolerated",
			p:       batch(10, 5),
			err:     status.Error(codes.AlreadyExists, "offset already written"),
			wantDup: 5,
		},
		{
			name:       "out of range is a gap",
			p:          batch(10, 5),
			err:        status.Error(codes.OutOfRange, "offset beyond end"),
			wantErr:    domain.ErrOffsetGap,
			wantErrors: 5,
		},
		{
			name:       "reported offset below expected",
			p:          batch(10, 5),
			offset:     8,
			wantErr:    domain.ErrOffsetMismatch,
			wantErrors: 5,
		},
		{
			name:       "reported offset above expected",
			p:          batch(10, 5),
			offset:     11,
			wantErr:    domain.ErrOffsetMismatch,
			wantErrors: 5,
		},
		{
			name:       "other error",
			p:          batch(10, 5),
			err:        status.Error(codes.Unavailable, "try later"),
			wantErr:    domain.ErrAppendFailed,
			wantErrors: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCounters()
			logger := &mockLogger{}
			v := NewExactlyOnceValidator(c, logger)

			err := v.Validate(tt.p, tt.offset, tt.err)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}

			s := c.Snapshot()
			if s.RecordsAppended != tt.wantAppended {
				t.Errorf("RecordsAppended = %d, want %d", s.RecordsAppended, tt.wantAppended)
			}
			if s.SendErrors != tt.wantErrors {
				t.Errorf("SendErrors = %d, want %d", s.SendErrors, tt.wantErrors)
			}
			if v.DuplicateRows() != tt.wantDup {
				t.Errorf("DuplicateRows() = %d, want %d", v.DuplicateRows(), tt.wantDup)
			}
			if tt.wantErr == nil && v.CommittedOffset() != 15 {
				t.Errorf("CommittedOffset() = %d, want 15", v.CommittedOffset())
			}
			if tt.wantDup > 0 && len(logger.warnings) != 1 {
				t.Errorf("warnings = %v, want one", logger.warnings)
			}
		})
	}
}

func TestExactlyOnceValidator_WrappedStatus(t *testing.T) {
	v := NewExactlyOnceValidator(NewCounters(), log.NewNoopLogger())
	wrapped := errors.Join(errors.New("append"), status.Error(codes.OutOfRange, "gap"))
	if err := v.Validate(batch(0, 1), 0, wrapped); !errors.Is(err, domain.ErrOffsetGap) {
		t.Errorf("Validate() error = %v, want ErrOffsetGap", err)
	}
}

func TestExactlyOnceValidator_ComparesStartOffset(t *testing.T) {
	tests := []struct {
		name     string
		reported int64
		wantErr  error
	}{
		{"matches first row", 7, nil},
		{"matches end of batch", 9, domain.ErrOffsetMismatch},
		{"below first row", 6, domain.ErrOffsetMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewExactlyOnceValidator(NewCounters(), log.NewNoopLogger())
			p := domain.PendingAppend{StartOffset: 7, ExpectedOffset: 9, RowCount: 2}
			err := v.Validate(p, tt.reported, nil)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExactlyOnceValidator_CommittedFollowsNewStream(t *testing.T) {
	v := NewExactlyOnceValidator(NewCounters(), log.NewNoopLogger())
	if err := v.Validate(batch(40, 2), 40, nil); err != nil {
		t.Fatal(err)
	}
	if err := v.Validate(batch(0, 3), 0, nil); err != nil {
		t.Fatal(err)
	}
	if got := v.CommittedOffset(); got != 3 {
		t.Errorf("CommittedOffset() = %d, want 3", got)
	}
}
