package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrMediaLimitReached = errors.New("media limit reached")
)

// Telegram albums hold at most ten items.
const maxMediaPerDrop = 10

type Store interface {
	Add(ctx context.Context, m model.ProductMedia) (int64, error)
	ListForProducts(ctx context.Context, productIDs []int64) (map[int64][]model.ProductMedia, error)
}

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Downloader fetches the bytes behind a telegram file id.
type Downloader interface {
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, int64, string, error)
}

type Service struct {
	store      Store
	storage    ObjectStorage
	downloader Downloader
}

func NewService(store Store, storage ObjectStorage, downloader Downloader) *Service {
	return &Service{
		store:      store,
		storage:    storage,
		downloader: downloader,
	}
}

// Attach copies a worker's telegram upload into object storage and records it
// against the product. The telegram file id is kept so delivery can resend it
// without a re-upload.
func (s *Service) Attach(ctx context.Context, productID int64, kind enums.MediaKind, fileID string, existing int) (model.ProductMedia, error) {
	if productID <= 0 || strings.TrimSpace(fileID) == "" {
		return model.ProductMedia{}, ErrValidation
	}
	if existing >= maxMediaPerDrop {
		return model.ProductMedia{}, ErrMediaLimitReached
	}
	if s.store == nil {
		return model.ProductMedia{}, fmt.Errorf("media store is not configured")
	}

	item := model.ProductMedia{
		ProductID:      productID,
		Kind:           kind,
		TelegramFileID: fileID,
	}

	if s.storage != nil && s.downloader != nil {
		key, err := s.upload(ctx, productID, fileID)
		if err != nil {
			return model.ProductMedia{}, err
		}
		item.S3Key = key
	}

	id, err := s.store.Add(ctx, item)
	if err != nil {
		if item.S3Key != "" {
			_ = s.storage.Delete(ctx, item.S3Key)
		}
		return model.ProductMedia{}, fmt.Errorf("create media record: %w", err)
	}
	item.ID = id
	return item, nil
}

func (s *Service) upload(ctx context.Context, productID int64, fileID string) (string, error) {
	if err := s.storage.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	body, size, contentType, err := s.downloader.DownloadFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer body.Close()

	if size <= 0 {
		size = -1
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	key := ObjectKey(productID)
	if err := s.storage.Put(ctx, key, body, size, contentType); err != nil {
		return "", fmt.Errorf("put media: %w", err)
	}
	return key, nil
}

func (s *Service) ForProducts(ctx context.Context, productIDs []int64) (map[int64][]model.ProductMedia, error) {
	if len(productIDs) == 0 {
		return map[int64][]model.ProductMedia{}, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("media store is not configured")
	}
	out, err := s.store.ListForProducts(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("list product media: %w", err)
	}
	return out, nil
}

// Open returns the stored object for media that has no reusable telegram id.
func (s *Service) Open(ctx context.Context, m model.ProductMedia) (io.ReadCloser, error) {
	if s.storage == nil || m.S3Key == "" {
		return nil, ErrValidation
	}
	return s.storage.Open(ctx, m.S3Key)
}

// Purge removes stored objects of delivered products. Rows go with the
// product through the foreign key cascade.
func (s *Service) Purge(ctx context.Context, items []model.ProductMedia) error {
	if s.storage == nil {
		return nil
	}
	var errs []error
	for _, m := range items {
		if m.S3Key == "" {
			continue
		}
		if err := s.storage.Delete(ctx, m.S3Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ObjectKey(productID int64) string {
	return fmt.Sprintf("products/%d/%s", productID, uuid.NewString())
}

func MaxMediaPerDrop() int {
	return maxMediaPerDrop
}
