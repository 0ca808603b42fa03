package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"strings"
	"sync"

	"github.com/google/uuid"
	msgpackrpc "github.com/hashicorp/net-rpc-msgpackrpc"
	"github.com/iwvelando/portfolio-evaluator/internal/batch"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
)

// RemoteError is an error reported by a remote evaluator. It unwraps to the
// sentinel kind from pkg/validation so errors.Is works across the wire.
type RemoteError struct {
	Code    string
	Message string
	kind    error
}

func (e *RemoteError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.kind
}

// encodeError renders err as "<code>: [<kind>] <message>".
func encodeError(err error) string {
	return fmt.Sprintf("%s: [%s] %s", validation.Code(err), validation.Kind(err).Error(), err.Error())
}

// decodeError parses the form produced by encodeError. Messages in any other
// form are treated as internal faults.
func decodeError(msg string) *RemoteError {
	code, rest, ok := strings.Cut(msg, ": ")
	if !ok || (code != validation.CodeInvalidArgument && code != validation.CodeInternal) {
		return &RemoteError{Code: validation.CodeInternal, Message: msg, kind: validation.ErrComputation}
	}
	if strings.HasPrefix(rest, "[") {
		if name, message, found := strings.Cut(rest[1:], "] "); found {
			return &RemoteError{Code: code, Message: message, kind: validation.KindFromName(name)}
		}
	}
	return &RemoteError{Code: code, Message: rest, kind: validation.ErrComputation}
}

// Client calls a remote evaluator.
type Client struct {
	addr   string
	client *rpc.Client
}

// Dial connects to the evaluator at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to evaluator %s: %w", addr, err)
	}
	return &Client{
		addr:   addr,
		client: rpc.NewClientWithCodec(newClientCodec(conn)),
	}, nil
}

// clientCodec serializes access to the msgpack codec, whose closed flag is
// read by every encode and decode without synchronization. Close shuts the
// connection first so a blocked read or write returns and releases its lock.
type clientCodec struct {
	conn    net.Conn
	codec   rpc.ClientCodec
	readMu  sync.Mutex
	writeMu sync.Mutex
}

func newClientCodec(conn net.Conn) *clientCodec {
	return &clientCodec{conn: conn, codec: msgpackrpc.NewClientCodec(conn)}
}

func (c *clientCodec) WriteRequest(r *rpc.Request, body interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.codec.WriteRequest(r, body)
}

func (c *clientCodec) ReadResponseHeader(r *rpc.Response) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return c.codec.ReadResponseHeader(r)
}

func (c *clientCodec) ReadResponseBody(body interface{}) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return c.codec.ReadResponseBody(body)
}

func (c *clientCodec) Close() error {
	err := c.conn.Close()

	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	// The connection is already closed; only the codec's flag changes here.
	_ = c.codec.Close()
	return err
}

// Addr returns the remote address.
func (c *Client) Addr() string {
	return c.addr
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// RunBatch runs req on the remote evaluator. When ctx ends first the wait is
// abandoned; the remote computation is not.
func (c *Client) RunBatch(ctx context.Context, req batch.Request) (model.PartialBatchResult, error) {
	if err := ctx.Err(); err != nil {
		return model.PartialBatchResult{}, err
	}
	args := &BatchArgs{
		RequestID:      uuid.NewString(),
		Portfolios:     req.Portfolios,
		PortfoliosBlob: req.PortfoliosBlob,
		Config:         req.Config,
		Iterations:     req.Iterations,
	}
	reply := &BatchReply{}

	call := c.client.Go(ServiceName+".RunBatch", args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
	case <-ctx.Done():
		return model.PartialBatchResult{}, ctx.Err()
	}

	if call.Error != nil {
		var serverErr rpc.ServerError
		if errors.As(call.Error, &serverErr) {
			return model.PartialBatchResult{}, fmt.Errorf("evaluator %s: %w", c.addr, decodeError(string(serverErr)))
		}
		return model.PartialBatchResult{}, fmt.Errorf("rpc call to evaluator %s failed: %w", c.addr, call.Error)
	}
	return reply.Result, nil
}
