package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
	"github.com/goblin987/ultramaxgoodbot/internal/pkg/validate"
	"github.com/goblin987/ultramaxgoodbot/internal/services/events"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrDependenciesNil = errors.New("intake dependencies are not configured")
)

type ProductCreator interface {
	Create(ctx context.Context, drop model.NewDrop) (int64, error)
}

type AuditStore interface {
	Insert(ctx context.Context, entry model.AuditEntry) error
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
}

type MediaAttacher interface {
	Attach(ctx context.Context, productID int64, kind enums.MediaKind, fileID string, existing int) (model.ProductMedia, error)
}

// Scope is where a worker's drops go.
type Scope struct {
	City     string
	District string
	Type     string
}

func (s Scope) Valid() bool {
	return validate.Required(s.City) && validate.Required(s.District) && validate.Required(s.Type)
}

type Attachment struct {
	Kind   enums.MediaKind
	FileID string
}

type Service struct {
	products ProductCreator
	audit    AuditStore
	tx       TxRunner
	media    MediaAttacher
	events   events.Publisher
	log      *zap.Logger
}

func NewService(products ProductCreator, audit AuditStore, tx TxRunner, media MediaAttacher, pub events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{products: products, audit: audit, tx: tx, media: media, events: pub, log: log}
}

// AddDrop parses one line and stores it as a product in scope. Media is
// attached after the product commits; a failed attachment is logged and the
// drop stays.
func (s *Service) AddDrop(ctx context.Context, workerID int64, scope Scope, line string, media []Attachment) (int64, error) {
	if s.products == nil || s.tx == nil {
		return 0, ErrDependenciesNil
	}
	if workerID <= 0 || !scope.Valid() {
		return 0, ErrValidation
	}
	size, price, err := ParseSizePrice(line)
	if err != nil {
		return 0, err
	}

	drop := model.NewDrop{
		City:         scope.City,
		District:     scope.District,
		Type:         scope.Type,
		Size:         size,
		Name:         scope.Type,
		Price:        price,
		OriginalText: strings.TrimSpace(line),
		AddedBy:      workerID,
	}

	var id int64
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		created, err := s.products.Create(txCtx, drop)
		if err != nil {
			return err
		}
		id = created
		if s.audit == nil {
			return nil
		}
		return s.audit.Insert(txCtx, model.AuditEntry{
			ActorID:      workerID,
			Action:       enums.AuditDropAdded,
			TargetUserID: workerID,
			Reason:       fmt.Sprintf("product %d %s %s/%s %s", created, scope.Type, scope.City, scope.District, size),
			NewValue:     decimal.NewNullDecimal(price),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("add drop: %w", err)
	}

	attached := 0
	for _, m := range media {
		if s.media == nil {
			break
		}
		if _, err := s.media.Attach(ctx, id, m.Kind, m.FileID, attached); err != nil {
			s.log.Warn("attach drop media failed", zap.Int64("product_id", id), zap.String("kind", string(m.Kind)), zap.Error(err))
			continue
		}
		attached++
	}

	events.Emit(ctx, s.events, s.log, events.Event{
		Type:       events.TypeDropAdded,
		UserID:     workerID,
		Amount:     price,
		ProductIDs: []int64{id},
		Reason:     scope.Type,
	})
	s.log.Info("drop added",
		zap.Int64("worker_id", workerID),
		zap.Int64("product_id", id),
		zap.String("city", scope.City),
		zap.String("district", scope.District),
		zap.String("type", scope.Type),
		zap.String("size", size),
		zap.String("price", price.String()),
		zap.Int("media", attached),
	)
	return id, nil
}

// AddLines adds one drop per non-empty line. Lines that fail are returned
// verbatim so the worker can correct and resend them.
func (s *Service) AddLines(ctx context.Context, workerID int64, scope Scope, text string) (int, []string, error) {
	added := 0
	var failed []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := s.AddDrop(ctx, workerID, scope, line, nil); err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) && (errors.Is(err, ErrValidation) || errors.Is(err, ErrDependenciesNil)) {
				return added, failed, err
			}
			failed = append(failed, strings.TrimSpace(line))
			continue
		}
		added++
	}
	return added, failed, nil
}
