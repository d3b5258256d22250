package ucs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
)

var errSimulatedFailure = errors.New("ucs test: simulated storage failure")

// fakeBoxes, fakeUploads and fakeS3Details are minimal in-memory stand-ins
// for *dao.DAO[T], used so Controller's unit tests never touch MongoDB.

type fakeBoxes struct {
	mu   sync.Mutex
	rows map[string]*FileUploadBox
}

func newFakeBoxes() *fakeBoxes { return &fakeBoxes{rows: map[string]*FileUploadBox{}} }

func (f *fakeBoxes) Get(_ context.Context, id string) (*FileUploadBox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBoxes) Upsert(_ context.Context, id string, doc *FileUploadBox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakeBoxes) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

type fakeUploads struct {
	mu   sync.Mutex
	rows map[string]*FileUpload
}

func newFakeUploads() *fakeUploads { return &fakeUploads{rows: map[string]*FileUpload{}} }

func (f *fakeUploads) Get(_ context.Context, id string) (*FileUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUploads) Upsert(_ context.Context, id string, doc *FileUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakeUploads) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeUploads) Find(_ context.Context, filter bson.M) ([]*FileUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FileUpload
	for _, u := range f.rows {
		if boxID, ok := filter["box_id"].(string); ok && u.BoxID != boxID {
			continue
		}
		if alias, ok := filter["alias"].(string); ok && u.Alias != alias {
			continue
		}
		if completed, ok := filter["completed"].(bool); ok && u.Completed != completed {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

type fakeS3Details struct {
	mu   sync.Mutex
	rows map[string]*S3UploadDetails
}

func newFakeS3Details() *fakeS3Details { return &fakeS3Details{rows: map[string]*S3UploadDetails{}} }

func (f *fakeS3Details) Get(_ context.Context, id string) (*S3UploadDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeS3Details) Upsert(_ context.Context, id string, doc *S3UploadDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakeS3Details) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

// fakeStorage is a minimal in-memory objectstorage.Storage.

type fakeStorage struct {
	mu       sync.Mutex
	uploads  map[string]bool // objectKey -> in progress
	objects  map[string]bool // objectKey -> exists (completed)
	failInit bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploads: map[string]bool{}, objects: map[string]bool{}}
}

func (s *fakeStorage) InitMultipart(_ context.Context, _, objectKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInit {
		return "", errSimulatedFailure
	}
	s.uploads[objectKey] = true
	return "upload-" + objectKey, nil
}

func (s *fakeStorage) PartUploadURL(_ context.Context, _, objectKey, _ string, partNo int32, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.uploads[objectKey] {
		return "", errSimulatedFailure
	}
	return "https://upload.example/" + objectKey, nil
}

func (s *fakeStorage) CompleteMultipart(_ context.Context, _, objectKey, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, objectKey)
	s.objects[objectKey] = true
	return nil
}

func (s *fakeStorage) AbortMultipart(_ context.Context, _, objectKey, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, objectKey)
	return nil
}

func (s *fakeStorage) CopyObject(_ context.Context, _, srcKey, _, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.objects[srcKey] {
		return errSimulatedFailure
	}
	s.objects[dstKey] = true
	return nil
}

func (s *fakeStorage) GetObjectSize(_ context.Context, _, _ string) (int64, error) { return 0, nil }

func (s *fakeStorage) DoesObjectExist(_ context.Context, _, objectKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[objectKey], nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, _, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey)
	return nil
}

func (s *fakeStorage) ListAllObjectIDs(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (s *fakeStorage) PresignDownload(_ context.Context, _, objectKey string, _ time.Duration) (string, error) {
	return "https://download.example/" + objectKey, nil
}

// fakePublisher records every published event without touching Kafka.

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(_ context.Context, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.Type)
	return nil
}

func newTestController() (*Controller, *fakeBoxes, *fakeUploads, *fakeStorage) {
	boxes := newFakeBoxes()
	uploads := newFakeUploads()
	s3details := newFakeS3Details()
	storage := newFakeStorage()
	publisher := &fakePublisher{}
	ctrl := &Controller{
		boxes:   boxes,
		uploads: uploads,
		s3:      s3details,
		storage: storage,
		events:  publisher,
		aliases: map[string]struct{}{"test": {}},
		partTTL: time.Minute,
	}
	return ctrl, boxes, uploads, storage
}

