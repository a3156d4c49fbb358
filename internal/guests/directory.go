package guests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrEmptyToken indicates the invite token was blank.
	ErrEmptyToken = errors.New("guests: token required")
	// ErrGuestNotFound indicates no guest owns the token.
	ErrGuestNotFound = errors.New("guests: guest not found")
	// ErrDirectoryUnavailable wraps connectivity or configuration failures of the backing store.
	ErrDirectoryUnavailable = errors.New("guests: directory unavailable")
	// ErrAmbiguousToken indicates more than one guest matched a token, which the unique index forbids.
	ErrAmbiguousToken = errors.New("guests: token matched more than one guest")
	// ErrInvalidName indicates a blank guest name on creation.
	ErrInvalidName = errors.New("guests: name required")
)

// IsInvalidToken reports whether err belongs to the outcomes surfaced to visitors as an invalid invite.
// Backend failures are intentionally indistinguishable from unknown tokens.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrEmptyToken) ||
		errors.Is(err, ErrGuestNotFound) ||
		errors.Is(err, ErrDirectoryUnavailable)
}

// DirectoryConfig describes the dependencies of the guest directory.
type DirectoryConfig struct {
	Database       *gorm.DB
	Logger         *zap.Logger
	Clock          func() time.Time
	TokenGenerator func() (string, error)
}

// Directory resolves invite tokens to guests and manages guest records for the admin CLI.
type Directory struct {
	db             *gorm.DB
	logger         *zap.Logger
	now            func() time.Time
	tokenGenerator func() (string, error)
	cache          sync.Map
}

// NewDirectory constructs the guest directory.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("guests: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	generator := cfg.TokenGenerator
	if generator == nil {
		generator = GenerateToken
	}
	return &Directory{
		db:             cfg.Database,
		logger:         logger,
		now:            clock,
		tokenGenerator: generator,
	}, nil
}

// Resolve returns the single guest owning token.
// Guests are immutable, so successful lookups are cached for the life of the process.
func (d *Directory) Resolve(ctx context.Context, token string) (Guest, error) {
	token = normalize(token)
	if token == "" {
		return Guest{}, ErrEmptyToken
	}

	if cached, ok := d.cache.Load(token); ok {
		if guest, ok := cached.(Guest); ok {
			return guest, nil
		}
	}

	var matches []Guest
	err := d.db.WithContext(ctx).
		Where("link_token = ?", token).
		Limit(2).
		Find(&matches).
		Error
	if err != nil {
		d.logger.Warn("guest lookup failed", zap.Error(err))
		return Guest{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	switch len(matches) {
	case 0:
		return Guest{}, ErrGuestNotFound
	case 1:
	default:
		d.logger.Error("invite token matched multiple guests", zap.Int("matches", len(matches)))
		return Guest{}, ErrAmbiguousToken
	}

	guest := matches[0]
	d.cache.Store(token, guest)
	return guest, nil
}

// Create registers a guest under a freshly generated invite token.
func (d *Directory) Create(ctx context.Context, name string) (Guest, error) {
	name = normalize(name)
	if name == "" {
		return Guest{}, ErrInvalidName
	}
	token, err := d.tokenGenerator()
	if err != nil {
		return Guest{}, err
	}
	guest := Guest{
		Name:      name,
		LinkToken: token,
		CreatedAt: d.now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&guest).Error; err != nil {
		return Guest{}, fmt.Errorf("guests: create: %w", err)
	}
	d.logger.Info("guest created", zap.Int64("guest_id", guest.ID))
	return guest, nil
}

// List returns every guest ordered by id.
func (d *Directory) List(ctx context.Context) ([]Guest, error) {
	var guests []Guest
	if err := d.db.WithContext(ctx).Order("id ASC").Find(&guests).Error; err != nil {
		return nil, fmt.Errorf("guests: list: %w", err)
	}
	return guests, nil
}

// InviteURL builds the shareable invite link for a guest.
func InviteURL(baseURL string, guest Guest) string {
	return fmt.Sprintf("%s/invite/%s", baseURL, guest.LinkToken)
}
