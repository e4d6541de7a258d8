// Package bigquery adapts the BigQuery Storage Write API to the stream ports.
package bigquery

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/bigquery/storage/managedwriter"
	"google.golang.org/api/option"

	"github.com/bft-labs/bqship/internal/ports"
)

// ClientOptions configures Storage Write API clients.
type ClientOptions struct {
	// CredentialsFile is a service account key file. Empty uses
	// application default credentials.
	CredentialsFile string

	// EnablePooling shares one multiplexed client between every writer
	// created by the factory.
	EnablePooling bool

	// EnableRetries lets the SDK retry failed appends.
	EnableRetries bool

	// Extra is appended to the generated client options.
	Extra []option.ClientOption
}

func (o ClientOptions) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if o.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	}
	if o.EnablePooling {
		opts = append(opts, managedwriter.WithMultiplexing())
	}
	return append(opts, o.Extra...)
}

// TableParent returns the destination parent of a table.
func TableParent(project, dataset, table string) string {
	return managedwriter.TableParentFromParts(project, dataset, table)
}

// NewClientFactory returns a factory creating managedwriter clients.
// With pooling enabled, every client returned shares one underlying
// connection pool, released when the last of them is closed.
func NewClientFactory(project string, opts ClientOptions) ports.ClientFactory {
	dial := func(ctx context.Context) (*managedwriter.Client, error) {
		c, err := managedwriter.NewClient(ctx, project, opts.clientOptions()...)
		if err != nil {
			return nil, fmt.Errorf("create storage write client for project %s: %w", project, err)
		}
		return c, nil
	}

	if !opts.EnablePooling {
		return func(ctx context.Context) (ports.StreamClient, error) {
			c, err := dial(ctx)
			if err != nil {
				return nil, err
			}
			return &Client{client: c, retries: opts.EnableRetries, release: c.Close}, nil
		}
	}

	pool := &sharedClient{dial: dial}
	return func(ctx context.Context) (ports.StreamClient, error) {
		c, err := pool.acquire(ctx)
		if err != nil {
			return nil, err
		}
		return &Client{client: c, retries: opts.EnableRetries, release: pool.release}, nil
	}
}

// sharedClient reference counts one managedwriter.Client.
type sharedClient struct {
	dial func(context.Context) (*managedwriter.Client, error)

	mu     sync.Mutex
	client *managedwriter.Client
	refs   int
}

func (s *sharedClient) acquire(ctx context.Context) (*managedwriter.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		c, err := s.dial(ctx)
		if err != nil {
			return nil, err
		}
		s.client = c
	}
	s.refs++
	return s.client, nil
}

func (s *sharedClient) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 || s.client == nil {
		return nil
	}
	c := s.client
	s.client = nil
	return c.Close()
}

// Client implements ports.StreamClient on a managedwriter.Client.
type Client struct {
	client  *managedwriter.Client
	retries bool
	release func() error

	once sync.Once
	err  error
}

// CreateStream opens a managed stream.
func (c *Client) CreateStream(ctx context.Context, spec ports.StreamSpec) (ports.AppendStream, error) {
	ms, err := c.client.NewManagedStream(ctx, streamOptions(spec, c.retries)...)
	if err != nil {
		return nil, err
	}
	return &Stream{ms: ms}, nil
}

// FinalizeStream finalizes the named stream through a short-lived managed
// stream. The service answers a repeated finalize with the row count.
func (c *Client) FinalizeStream(ctx context.Context, table, name string) (int64, error) {
	ms, err := c.client.NewManagedStream(ctx,
		managedwriter.WithDestinationTable(table),
		managedwriter.WithStreamName(name),
	)
	if err != nil {
		return 0, err
	}
	defer ms.Close()
	return ms.Finalize(ctx)
}

// Close releases the client. Later calls return the first result.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.err = c.release()
	})
	return c.err
}

func streamOptions(spec ports.StreamSpec, retries bool) []managedwriter.WriterOption {
	opts := []managedwriter.WriterOption{
		managedwriter.WithDestinationTable(spec.Table),
		managedwriter.EnableWriteRetries(retries),
	}
	if spec.Schema != nil {
		opts = append(opts, managedwriter.WithSchemaDescriptor(spec.Schema))
	}
	if spec.TraceID != "" {
		opts = append(opts, managedwriter.WithTraceID(spec.TraceID))
	}
	if spec.Name != "" {
		return append(opts, managedwriter.WithStreamName(spec.Name))
	}
	return append(opts, managedwriter.WithType(streamType(spec.Type)))
}

func streamType(t ports.StreamType) managedwriter.StreamType {
	if t == ports.CommittedStream {
		return managedwriter.CommittedStream
	}
	return managedwriter.DefaultStream
}

// Stream implements ports.AppendStream on a managedwriter.ManagedStream.
type Stream struct {
	ms *managedwriter.ManagedStream
}

// Name returns the fully qualified stream name.
func (s *Stream) Name() string {
	return s.ms.StreamName()
}

// Append sends rows, with an explicit offset unless offset is NoOffset.
func (s *Stream) Append(ctx context.Context, rows [][]byte, offset int64) (ports.Completion, error) {
	var opts []managedwriter.AppendOption
	if offset != ports.NoOffset {
		opts = append(opts, managedwriter.WithOffset(offset))
	}
	r, err := s.ms.AppendRows(ctx, rows, opts...)
	if err != nil {
		return nil, err
	}
	return appendResult{r: r}, nil
}

// Finalize marks the stream as complete.
func (s *Stream) Finalize(ctx context.Context) (int64, error) {
	return s.ms.Finalize(ctx)
}

// Close closes the stream connection.
func (s *Stream) Close() error {
	return s.ms.Close()
}

type appendResult struct {
	r *managedwriter.AppendResult
}

func (a appendResult) Ready() <-chan struct{} {
	return a.r.Ready()
}

func (a appendResult) Wait(ctx context.Context) (int64, error) {
	select {
	case <-a.r.Ready():
		return a.r.GetResult(context.Background())
	default:
		return a.r.GetResult(ctx)
	}
}
