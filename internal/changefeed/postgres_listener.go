package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PostgresChannel is the NOTIFY channel written by the change trigger.
const PostgresChannel = "wedding_changes"

const defaultReconnectDelay = 2 * time.Second

var errMissingDSN = errors.New("changefeed: postgres dsn required")

// PostgresListenerConfig configures a PostgresListener.
type PostgresListenerConfig struct {
	DSN            string
	Channel        string
	Local          Publisher
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

// PostgresListener turns LISTEN/NOTIFY payloads emitted by the database trigger into
// local change events.
type PostgresListener struct {
	dsn            string
	channel        string
	local          Publisher
	reconnectDelay time.Duration
	logger         *zap.Logger
}

// NewPostgresListener constructs a PostgresListener.
func NewPostgresListener(cfg PostgresListenerConfig) (*PostgresListener, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errMissingDSN
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = PostgresChannel
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresListener{
		dsn:            cfg.DSN,
		channel:        channel,
		local:          cfg.Local,
		reconnectDelay: delay,
		logger:         logger,
	}, nil
}

// Run listens until ctx is done, reconnecting after connection failures.
func (l *PostgresListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("postgres change listener disconnected", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *PostgresListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("postgres change listener attached", zap.String("channel", l.channel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		event, err := decodeEvent(notification.Payload)
		if err != nil {
			l.logger.Warn("dropping malformed change notification", zap.Error(err))
			continue
		}
		if l.local == nil {
			continue
		}
		if err := l.local.Publish(ctx, event); err != nil {
			l.logger.Warn("local change dispatch failed", zap.Error(err))
		}
	}
}

// TriggerSQL returns the statements that install the NOTIFY trigger on table.
func TriggerSQL(table string) []string {
	quotedTable := pgx.Identifier{table}.Sanitize()
	triggerName := pgx.Identifier{table + "_notify_change"}.Sanitize()
	return []string{
		`CREATE OR REPLACE FUNCTION wedding_notify_change() RETURNS trigger AS $$
DECLARE
	changed_id bigint;
BEGIN
	IF TG_OP = 'DELETE' THEN
		changed_id := OLD.id;
	ELSE
		changed_id := NEW.id;
	END IF;
	PERFORM pg_notify('` + PostgresChannel + `', json_build_object(
		'table', TG_TABLE_NAME,
		'type', TG_OP,
		'record_id', changed_id,
		'timestamp', now()
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`,
		"DROP TRIGGER IF EXISTS " + triggerName + " ON " + quotedTable,
		"CREATE TRIGGER " + triggerName + " AFTER INSERT OR UPDATE OR DELETE ON " + quotedTable +
			" FOR EACH ROW EXECUTE FUNCTION wedding_notify_change()",
	}
}
