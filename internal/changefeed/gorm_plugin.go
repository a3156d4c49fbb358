package changefeed

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const gormPluginName = "changefeed"

// GormPlugin publishes a change event after every committed create, update or delete
// on one of the watched tables.
type GormPlugin struct {
	publisher Publisher
	tables    map[string]struct{}
	clock     func() time.Time
	logger    *zap.Logger
}

// GormPluginConfig configures NewGormPlugin.
type GormPluginConfig struct {
	Publisher Publisher
	Tables    []string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// NewGormPlugin constructs the plugin; register it with db.Use.
func NewGormPlugin(cfg GormPluginConfig) *GormPlugin {
	tables := make(map[string]struct{}, len(cfg.Tables))
	for _, table := range cfg.Tables {
		tables[table] = struct{}{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormPlugin{
		publisher: cfg.Publisher,
		tables:    tables,
		clock:     clock,
		logger:    logger,
	}
}

// Name implements gorm.Plugin.
func (p *GormPlugin) Name() string {
	return gormPluginName
}

// Initialize implements gorm.Plugin. Callbacks run after the implicit transaction commits.
func (p *GormPlugin) Initialize(db *gorm.DB) error {
	const anchor = "gorm:commit_or_rollback_transaction"
	if err := db.Callback().Create().After(anchor).Register("changefeed:after_create", p.notify(EventInsert)); err != nil {
		return err
	}
	if err := db.Callback().Update().After(anchor).Register("changefeed:after_update", p.notify(EventUpdate)); err != nil {
		return err
	}
	return db.Callback().Delete().After(anchor).Register("changefeed:after_delete", p.notify(EventDelete))
}

func (p *GormPlugin) notify(eventType EventType) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if p.publisher == nil || tx.Error != nil || tx.RowsAffected == 0 || tx.Statement == nil {
			return
		}
		table := tx.Statement.Table
		if _, watched := p.tables[table]; !watched {
			return
		}
		event := Event{
			Table:     table,
			Type:      eventType,
			RecordID:  primaryKeyOf(tx),
			Timestamp: p.clock().UTC(),
		}
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		if err := p.publisher.Publish(ctx, event); err != nil {
			p.logger.Warn("change event publish failed",
				zap.String("table", table),
				zap.String("type", string(eventType)),
				zap.Error(err))
		}
	}
}

func primaryKeyOf(tx *gorm.DB) int64 {
	statement := tx.Statement
	if statement.Schema == nil || statement.Schema.PrioritizedPrimaryField == nil {
		return 0
	}
	value := statement.ReflectValue
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return 0
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return 0
	}
	raw, zero := statement.Schema.PrioritizedPrimaryField.ValueOf(statement.Context, value)
	if zero {
		return 0
	}
	switch typed := raw.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case uint:
		return int64(typed)
	case uint64:
		return int64(typed)
	default:
		return 0
	}
}
