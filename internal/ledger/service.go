// Package ledger owns the stock catalog and every operation that moves stock:
// sales, checkouts, restocks, damages, returns, cancellations and voids.
// Each mutation runs in a single transaction and changes quantity only through
// one conditional UPDATE, so concurrent tills cannot oversell an item.
package ledger

import (
	"context"
	"time"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/events"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher receives change notifications after a transaction commits.
type Publisher interface {
	Publish(events.Event)
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	events           Publisher
	now              func() time.Time
	cancelWindow     time.Duration
	defaultThreshold int
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

// WithClock replaces time.Now, mostly for tests around the cancel window.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithCancelWindow sets how long after creation a sale may be cancelled or voided.
func WithCancelWindow(d time.Duration) Option { return func(s *Service) { s.cancelWindow = d } }

// WithDefaultThreshold sets the low-stock threshold for items created without one.
func WithDefaultThreshold(n int) Option { return func(s *Service) { s.defaultThreshold = n } }

func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:               db,
		log:              zap.NewNop(),
		now:              time.Now,
		cancelWindow:     24 * time.Hour,
		defaultThreshold: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CancelWindow reports the configured recency window for cancels and voids.
func (s *Service) CancelWindow() time.Duration { return s.cancelWindow }

func (s *Service) clock() time.Time { return s.now().UTC() }

// outbox collects events inside a transaction; they are only published once it commits.
type outbox []events.Event

func (o *outbox) add(e events.Event) { *o = append(*o, e) }

// transact runs fn in one database transaction. Any error rolls back every
// write fn made; non-apperr errors surface as storage failures.
func (s *Service) transact(ctx context.Context, op string, fn func(tx *gorm.DB, box *outbox) error) error {
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, &box)
	})
	if err != nil {
		err = apperr.From(op, err)
		if apperr.KindOf(err) == apperr.KindStorage {
			s.log.Error(op+" failed", zap.Error(err))
		} else {
			s.log.Info(op+" rejected", zap.Error(err))
		}
		return err
	}
	if s.events != nil {
		for _, e := range box {
			s.events.Publish(e)
		}
	}
	return nil
}

func optionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}
