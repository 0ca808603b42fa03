// Package rpc exposes the batch evaluation service over net/rpc with a
// MessagePack codec, so shard coordinators can fan a population evaluation
// out to several evaluator processes.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	msgpackrpc "github.com/hashicorp/net-rpc-msgpackrpc"
	"github.com/iwvelando/portfolio-evaluator/internal/batch"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"go.uber.org/zap"
)

// ServiceName is the name the evaluator is registered under.
const ServiceName = "Evaluator"

// Runner is the batch evaluation the RPC service delegates to.
type Runner interface {
	RunBatch(ctx context.Context, req batch.Request) (model.PartialBatchResult, error)
}

// BatchArgs is the wire form of batch.Request.
type BatchArgs struct {
	RequestID      string
	Portfolios     []model.Portfolio
	PortfoliosBlob []byte
	Config         model.EvaluationConfig
	Iterations     int
}

// BatchReply carries the partial sums of one batch.
type BatchReply struct {
	Result         model.PartialBatchResult
	DurationMillis int64
}

// Evaluator is the RPC receiver.
type Evaluator struct {
	runner Runner
	logger *zap.Logger
}

// RunBatch runs one batch. Errors carry a code prefix and the error kind so
// that clients can map them back; see RemoteError.
func (e *Evaluator) RunBatch(args *BatchArgs, reply *BatchReply) error {
	start := time.Now()
	result, err := e.runner.RunBatch(context.Background(), batch.Request{
		Portfolios:     args.Portfolios,
		PortfoliosBlob: args.PortfoliosBlob,
		Config:         args.Config,
		Iterations:     args.Iterations,
	})
	if err != nil {
		e.logger.Warn("rpc batch failed",
			zap.String("op", "rpc.Evaluator.RunBatch"),
			zap.String("request_id", args.RequestID),
			zap.String("code", validation.Code(err)),
			zap.Error(err),
		)
		return errors.New(encodeError(err))
	}

	reply.Result = result
	reply.DurationMillis = time.Since(start).Milliseconds()
	return nil
}

// Server accepts RPC connections and serves each on its own goroutine.
type Server struct {
	logger *zap.Logger
	rpc    *rpc.Server

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer registers the evaluator service backed by runner.
func NewServer(logger *zap.Logger, runner Runner) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, &Evaluator{runner: runner, logger: logger}); err != nil {
		return nil, fmt.Errorf("failed to register rpc service: %w", err)
	}
	return &Server{
		logger: logger,
		rpc:    srv,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections on l until ctx is canceled, then closes the
// listener and every open connection. It returns once every connection
// goroutine has exited; net/rpc holds a connection goroutine until its
// in-flight calls complete, so a batch that already started is drained
// rather than abandoned. Its reply is dropped with the connection.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	s.logger.Info("rpc server listening",
		zap.String("op", "rpc.Serve"),
		zap.String("address", l.Addr().String()),
	)

	defer s.closeConns()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rpc accept failed: %w", err)
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.rpc.ServeCodec(msgpackrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
