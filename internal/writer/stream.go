package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/bqship/internal/domain"
	"github.com/bft-labs/bqship/internal/ports"
	"github.com/bft-labs/bqship/pkg/log"
)

// StreamManager owns the client and the write stream of one writer.
type StreamManager struct {
	factory ports.ClientFactory
	logger  log.Logger

	client ports.StreamClient
	stream ports.AppendStream
}

// NewStreamManager creates a manager that builds clients with factory.
func NewStreamManager(factory ports.ClientFactory, logger log.Logger) *StreamManager {
	return &StreamManager{factory: factory, logger: logger}
}

// Open creates a client and a stream described by spec.
// A spec with a Name reopens that stream; otherwise a new one is created.
// On failure nothing is left open.
func (m *StreamManager) Open(ctx context.Context, spec ports.StreamSpec) (ports.AppendStream, error) {
	if m.stream != nil {
		return m.stream, nil
	}

	client, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: table %s: %w", domain.ErrStreamCreate, spec.Table, err)
	}

	stream, err := client.CreateStream(ctx, spec)
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			m.logger.Warn("failed to close client after stream error", log.Err(cerr))
		}
		return nil, fmt.Errorf("%w: table %s, stream %q (%s): %w",
			domain.ErrStreamCreate, spec.Table, spec.Name, spec.Type, err)
	}

	m.client = client
	m.stream = stream

	m.logger.Info("append stream opened",
		log.String("table", spec.Table),
		log.String("stream", stream.Name()),
		log.Stringer("type", spec.Type),
	)
	return stream, nil
}

// Stream returns the open stream or nil.
func (m *StreamManager) Stream() ports.AppendStream {
	return m.stream
}

// Finalize marks the stream as complete and returns its row count.
// It is a no-op if no stream is open.
func (m *StreamManager) Finalize(ctx context.Context) (int64, error) {
	if m.stream == nil {
		return 0, nil
	}
	rows, err := m.stream.Finalize(ctx)
	if err != nil {
		return 0, fmt.Errorf("finalize stream %s: %w", m.stream.Name(), err)
	}
	return rows, nil
}

// FinalizeNamed releases the open stream, if any, then finalizes the
// stream called name through a short-lived client and returns its row
// count.
func (m *StreamManager) FinalizeNamed(ctx context.Context, table, name string) (int64, error) {
	_ = m.Close()

	client, err := m.factory(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: table %s: %w", domain.ErrStreamCreate, table, err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			m.logger.Warn("failed to close stream client", log.Err(cerr))
		}
	}()

	rows, err := client.FinalizeStream(ctx, table, name)
	if err != nil {
		return 0, fmt.Errorf("finalize stream %s: %w", name, err)
	}
	return rows, nil
}

// Close releases the stream, then the client. It is safe to call more
// than once; every release is attempted and failures are joined.
func (m *StreamManager) Close() error {
	var errs []error

	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			m.logger.Warn("failed to close append stream", log.String("stream", m.stream.Name()), log.Err(err))
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
		m.stream = nil
	}

	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Warn("failed to close stream client", log.Err(err))
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
		m.client = nil
	}

	return errors.Join(errs...)
}
