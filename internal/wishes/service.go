package wishes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	uniqueViolationSQLState     = "23505"
	foreignKeyViolationSQLState = "23503"
)

var (
	// ErrEmptyMessage marks a submission that is not ready yet; callers treat it as a no-op.
	ErrEmptyMessage = errors.New("wishes: message is empty")
	// ErrAlreadySubmitted is the conflict outcome for a guest's second wish.
	ErrAlreadySubmitted = errors.New("wishes: guest already submitted a wish")
	// ErrSubmissionInFlight rejects a concurrent submission while the guest's first one is being written.
	ErrSubmissionInFlight = errors.New("wishes: submission already in progress")
	// ErrInvalidPartySize indicates a party size outside the selectable range.
	ErrInvalidPartySize = errors.New("wishes: invalid party size")
	// ErrInvalidGuest indicates a submission without a guest reference.
	ErrInvalidGuest = errors.New("wishes: guest id required")
	// ErrUnknownGuest indicates the referenced guest does not exist.
	ErrUnknownGuest = errors.New("wishes: guest does not exist")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable operation.reason code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "wishes.service.new"
	opSubmit     = "wishes.submit"
	opList       = "wishes.list"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

type Service struct {
	db       *gorm.DB
	clock    func() time.Time
	logger   *zap.Logger
	inFlight sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// SubmitRequest is one guest's wish. Name is the guest's display name at submission time.
type SubmitRequest struct {
	GuestID        int64
	Name           string
	Message        string
	NumberOfGuests int
	WillAttend     bool
}

// Submit stores the guest's single wish.
func (s *Service) Submit(ctx context.Context, request SubmitRequest) (Wish, error) {
	message := strings.TrimSpace(request.Message)
	if message == "" {
		return Wish{}, ErrEmptyMessage
	}
	if request.GuestID <= 0 {
		return Wish{}, ErrInvalidGuest
	}
	if !ValidPartySize(request.NumberOfGuests) {
		return Wish{}, fmt.Errorf("%w: %d", ErrInvalidPartySize, request.NumberOfGuests)
	}
	if s.db == nil {
		s.logError(opSubmit, "missing_database", errMissingDatabase)
		return Wish{}, newServiceError(opSubmit, "missing_database", errMissingDatabase)
	}

	if _, busy := s.inFlight.LoadOrStore(request.GuestID, struct{}{}); busy {
		return Wish{}, ErrSubmissionInFlight
	}
	defer s.inFlight.Delete(request.GuestID)

	wish := Wish{
		GuestID:        request.GuestID,
		Name:           strings.TrimSpace(request.Name),
		Message:        message,
		NumberOfGuests: request.NumberOfGuests,
		WillAttend:     request.WillAttend,
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&wish).Error; err != nil {
		if isUniqueViolation(err) {
			s.loggerOrDefault().Info("duplicate wish rejected", zap.Int64("guest_id", request.GuestID))
			return Wish{}, ErrAlreadySubmitted
		}
		if isForeignKeyViolation(err) {
			s.loggerOrDefault().Warn("wish for unknown guest rejected", zap.Int64("guest_id", request.GuestID))
			return Wish{}, ErrUnknownGuest
		}
		s.logError(opSubmit, "insert_failed", err, zap.Int64("guest_id", request.GuestID))
		return Wish{}, newServiceError(opSubmit, "insert_failed", err)
	}

	s.loggerOrDefault().Info("wish submitted",
		zap.Int64("wish_id", wish.ID),
		zap.Int64("guest_id", wish.GuestID))
	return wish, nil
}

// List returns every wish, newest first.
func (s *Service) List(ctx context.Context) ([]Wish, error) {
	if s.db == nil {
		s.logError(opList, "missing_database", errMissingDatabase)
		return nil, newServiceError(opList, "missing_database", errMissingDatabase)
	}

	var wishes []Wish
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&wishes).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}

	return wishes, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationSQLState
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value")
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == foreignKeyViolationSQLState
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("wishes service error", attrs...)
}
