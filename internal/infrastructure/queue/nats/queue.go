package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

const defaultQueueGroup = "reservation-workers"

type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	jobTimeout time.Duration
	executor   *resilience.Executor
	logger     *slog.Logger
	now        func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	// JobTimeout bounds a single handler run; zero means no limit.
	JobTimeout         time.Duration
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
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
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = defaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name("museum-docent"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		jobTimeout: options.JobTimeout,
		executor:   options.ResilienceExecutor,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// reservationRequested is the message body published for every submitted application.
type reservationRequested struct {
	ReservationID string    `json:"reservation_id"`
	RequestedAt   time.Time `json:"requested_at"`
}

func encodeReservationRequested(id string, at time.Time) ([]byte, error) {
	return json.Marshal(reservationRequested{ReservationID: id, RequestedAt: at.UTC()})
}

// decodeReservationRequested also accepts a bare id payload, which carries no timestamp.
func decodeReservationRequested(data []byte) (reservationRequested, error) {
	var msg reservationRequested
	if err := json.Unmarshal(data, &msg); err != nil {
		if len(data) > 0 && data[0] != '{' {
			return reservationRequested{ReservationID: string(data)}, nil
		}
		return reservationRequested{}, fmt.Errorf("decode reservation message: %w", err)
	}
	if msg.ReservationID == "" {
		return reservationRequested{}, fmt.Errorf("decode reservation message: empty reservation id")
	}
	return msg, nil
}

type requestedAtKey struct{}

// RequestedAt returns the publish time of the job being handled, when the message carried one.
func RequestedAt(ctx context.Context) (time.Time, bool) {
	at, ok := ctx.Value(requestedAtKey{}).(time.Time)
	return at, ok && !at.IsZero()
}

func (q *Queue) PublishReservationRequested(ctx context.Context, reservationID string) error {
	payload, err := encodeReservationRequested(reservationID, q.now())
	if err != nil {
		return err
	}

	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeReservationRequested blocks until ctx is cancelled, then drains the subscription.
func (q *Queue) SubscribeReservationRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		job, err := decodeReservationRequested(msg.Data)
		if err != nil {
			q.logger.Error("reservation_message_invalid", "error", err)
			return
		}

		handlerCtx, cancel := q.handlerContext(context.WithValue(ctx, requestedAtKey{}, job.RequestedAt))
		defer cancel()
		if err := handler(handlerCtx, job.ReservationID); err != nil {
			q.logger.Error("reservation_job_failed", "reservation_id", job.ReservationID, "error", err)
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

func (q *Queue) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.jobTimeout > 0 {
		return context.WithTimeout(ctx, q.jobTimeout)
	}
	return context.WithCancel(ctx)
}
