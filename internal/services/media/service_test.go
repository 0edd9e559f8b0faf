package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
	"github.com/goblin987/ultramaxgoodbot/internal/domain/model"
)

type fakeStore struct {
	items  []model.ProductMedia
	nextID int64
	addErr error
}

func (f *fakeStore) Add(_ context.Context, m model.ProductMedia) (int64, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.nextID++
	m.ID = f.nextID
	f.items = append(f.items, m)
	return f.nextID, nil
}

func (f *fakeStore) ListForProducts(_ context.Context, ids []int64) (map[int64][]model.ProductMedia, error) {
	out := make(map[int64][]model.ProductMedia)
	for _, id := range ids {
		for _, m := range f.items {
			if m.ProductID == id {
				out[id] = append(out[id], m)
			}
		}
	}
	return out, nil
}

type fakeStorage struct {
	objects map[string][]byte
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) EnsureBucket(_ context.Context) error {
	return nil
}

func (f *fakeStorage) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

type fakeDownloader struct {
	body string
}

func (f fakeDownloader) DownloadFile(_ context.Context, _ string) (io.ReadCloser, int64, string, error) {
	return io.NopCloser(strings.NewReader(f.body)), int64(len(f.body)), "image/jpeg", nil
}

func TestAttachStoresObjectAndRecord(t *testing.T) {
	store := &fakeStore{}
	storage := newFakeStorage()
	svc := NewService(store, storage, fakeDownloader{body: "jpegbytes"})

	m, err := svc.Attach(context.Background(), 42, enums.MediaKindPhoto, "file-1", 0)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if m.ID != 1 || m.TelegramFileID != "file-1" {
		t.Fatalf("unexpected media: %+v", m)
	}
	if !strings.HasPrefix(m.S3Key, "products/42/") {
		t.Fatalf("unexpected key %q", m.S3Key)
	}

	r, err := svc.Open(context.Background(), m)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "jpegbytes" {
		t.Fatalf("unexpected object body %q", data)
	}
}

func TestAttachRemovesObjectWhenRecordFails(t *testing.T) {
	store := &fakeStore{addErr: errors.New("db down")}
	storage := newFakeStorage()
	svc := NewService(store, storage, fakeDownloader{body: "x"})

	if _, err := svc.Attach(context.Background(), 1, enums.MediaKindVideo, "file", 0); err == nil {
		t.Fatal("expected error")
	}
	if len(storage.deleted) != 1 || len(storage.objects) != 0 {
		t.Fatalf("expected cleanup of uploaded object, deleted=%v", storage.deleted)
	}
}

func TestAttachLimit(t *testing.T) {
	svc := NewService(&fakeStore{}, newFakeStorage(), fakeDownloader{})

	_, err := svc.Attach(context.Background(), 1, enums.MediaKindPhoto, "file", MaxMediaPerDrop())
	if !errors.Is(err, ErrMediaLimitReached) {
		t.Fatalf("expected ErrMediaLimitReached, got %v", err)
	}
}

func TestAttachWithoutStorageKeepsFileID(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil, nil)

	m, err := svc.Attach(context.Background(), 3, enums.MediaKindAnimation, "gif-id", 0)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if m.S3Key != "" || m.TelegramFileID != "gif-id" {
		t.Fatalf("unexpected media: %+v", m)
	}
}

func TestPurgeSkipsMediaWithoutObject(t *testing.T) {
	storage := newFakeStorage()
	svc := NewService(&fakeStore{}, storage, nil)

	err := svc.Purge(context.Background(), []model.ProductMedia{
		{ProductID: 1, S3Key: "products/1/a"},
		{ProductID: 1, TelegramFileID: "only-telegram"},
	})
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(storage.deleted) != 1 || storage.deleted[0] != "products/1/a" {
		t.Fatalf("unexpected deletes %v", storage.deleted)
	}
}
