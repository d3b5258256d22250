package ifrs

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
)

var errSimulatedFailure = errors.New("ifrs test: simulated failure")

// fakeMetadata, fakePending, fakeAccessions, fakeStorage, fakeAliases and
// fakePublisher are minimal in-memory stand-ins for the real ports, used
// so RegistryController tests never touch MongoDB, S3 or Kafka.

type fakeMetadata struct {
	mu   sync.Mutex
	rows map[string]*FileMetadata
}

func newFakeMetadata() *fakeMetadata { return &fakeMetadata{rows: map[string]*FileMetadata{}} }

func (f *fakeMetadata) Get(_ context.Context, id string) (*FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeMetadata) Upsert(_ context.Context, id string, doc *FileMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakeMetadata) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeMetadata) Find(_ context.Context, filter bson.M) ([]*FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FileMetadata
	for _, r := range f.rows {
		if accession, ok := filter["accession"].(string); ok && r.Accession != accession {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

type fakePending struct {
	mu   sync.Mutex
	rows map[string]*PendingFileUpload
}

func newFakePending() *fakePending { return &fakePending{rows: map[string]*PendingFileUpload{}} }

func (f *fakePending) Get(_ context.Context, id string) (*PendingFileUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakePending) Upsert(_ context.Context, id string, doc *PendingFileUpload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakePending) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

type fakeAccessions struct {
	mu   sync.Mutex
	rows map[string]*FileIDToAccession
}

func newFakeAccessions() *fakeAccessions { return &fakeAccessions{rows: map[string]*FileIDToAccession{}} }

func (f *fakeAccessions) Get(_ context.Context, id string) (*FileIDToAccession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAccessions) Upsert(_ context.Context, id string, doc *FileIDToAccession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakeAccessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

// fakeStorage is a per-(alias,key) in-memory object map; CopyObject moves
// a size entry from one (alias,key) pair to another, DeleteObject removes
// it, matching the real Storage's idempotent "NotFound is not an error"
// contract on delete.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]int64
}

func newFakeStorage() *fakeStorage { return &fakeStorage{objects: map[string]int64{}} }

func objKey(alias, key string) string { return alias + "/" + key }

func (s *fakeStorage) put(alias, key string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objKey(alias, key)] = size
}

func (s *fakeStorage) CopyObject(_ context.Context, srcAlias, srcKey, dstAlias, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.objects[objKey(srcAlias, srcKey)]
	if !ok {
		return errSimulatedFailure
	}
	s.objects[objKey(dstAlias, dstKey)] = size
	return nil
}

func (s *fakeStorage) GetObjectSize(_ context.Context, alias, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.objects[objKey(alias, key)]
	if !ok {
		return 0, errSimulatedFailure
	}
	return size, nil
}

func (s *fakeStorage) DoesObjectExist(_ context.Context, alias, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objKey(alias, key)]
	return ok, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, alias, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objKey(alias, key))
	return nil
}

// fakeAliases resolves every hub alias to a single "<alias>-permanent"
// bucket alias, unless explicitly marked unconfigured.
type fakeAliases struct {
	unconfigured map[string]bool
}

func (a *fakeAliases) PermanentAlias(hubAlias string) (string, bool) {
	if a.unconfigured[hubAlias] {
		return "", false
	}
	return hubAlias + "-permanent", true
}

// fakePublisher records every published event without touching Kafka.
type fakePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *fakePublisher) Publish(_ context.Context, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newTestController() (*RegistryController, *fakeMetadata, *fakePending, *fakeAccessions, *fakeStorage, *fakePublisher) {
	metadata := newFakeMetadata()
	pending := newFakePending()
	accessions := newFakeAccessions()
	storage := newFakeStorage()
	pub := &fakePublisher{}
	ctrl := NewRegistryController(metadata, pending, accessions, pub, storage, &fakeAliases{unconfigured: map[string]bool{}})
	return ctrl, metadata, pending, accessions, storage, pub
}
