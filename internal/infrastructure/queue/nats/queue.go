package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/resilience"
)

const queueGroup = "rag-workers"

// QueryRequest is the request body on the query subject. An empty UserID
// asks a standalone question; otherwise the question is a conversational turn.
type QueryRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id,omitempty"`
}

type QueryReply struct {
	Answer *domain.Answer `json:"answer,omitempty"`
	Error  string         `json:"error,omitempty"`
	Kind   string         `json:"kind,omitempty"`
}

type QueryHandler func(ctx context.Context, req QueryRequest) (*domain.Answer, error)

// Queue is the request/reply transport for RAG queries over NATS.
type Queue struct {
	conn           *nats.Conn
	subject        string
	requestTimeout time.Duration
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RequestTimeout       time.Duration
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("adaptive-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		requestTimeout: requestTimeout,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ask sends a query and waits for the worker's reply. Without a caller
// deadline the configured request timeout applies.
func (q *Queue) Ask(ctx context.Context, req QueryRequest) (*domain.Answer, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.requestTimeout)
		defer cancel()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	msg, err := resilience.Do(ctx, q.executor, "nats.request", func(callCtx context.Context) (*nats.Msg, error) {
		return q.conn.RequestWithContext(callCtx, q.subject, data)
	}, classifyNATSError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("nats request", err)
	}
	return decodeReply(msg.Data)
}

// Serve answers queries in the worker queue group until ctx is cancelled,
// then drains the subscription. Requests already running finish on a context
// detached from ctx and bounded by the request timeout; requests delivered
// after cancellation are refused with a temporary error so the caller can
// retry elsewhere.
func (q *Queue) Serve(ctx context.Context, handler QueryHandler) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if err := msg.Respond(q.serveOne(ctx, msg.Data, handler)); err != nil {
			q.logger.Error("nats_respond_failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) serveOne(serveCtx context.Context, data []byte, handler QueryHandler) []byte {
	if serveCtx.Err() != nil {
		return encodeReply(nil, domain.WrapError(domain.ErrTemporary, "serve query", fmt.Errorf("worker is shutting down")))
	}
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(serveCtx), q.requestTimeout)
	defer cancel()
	return q.handle(reqCtx, data, handler)
}

func (q *Queue) handle(ctx context.Context, data []byte, handler QueryHandler) []byte {
	var req QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply(nil, domain.WrapError(domain.ErrInvalidInput, "decode query request", err))
	}
	answer, err := handler(ctx, req)
	if err != nil {
		q.logger.Warn("nats_query_failed", slog.Any("error", err))
	}
	return encodeReply(answer, err)
}

func encodeReply(answer *domain.Answer, err error) []byte {
	reply := QueryReply{Answer: answer}
	if err != nil {
		reply = QueryReply{Error: err.Error(), Kind: errorKind(err)}
	}
	data, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		data, _ = json.Marshal(QueryReply{Error: marshalErr.Error()})
	}
	return data
}

func decodeReply(data []byte) (*domain.Answer, error) {
	var reply QueryReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("decode query reply: %w", err)
	}
	if reply.Error != "" {
		return nil, errorFromKind(reply.Kind, reply.Error)
	}
	if reply.Answer == nil {
		return nil, fmt.Errorf("decode query reply: empty answer")
	}
	return reply.Answer, nil
}
