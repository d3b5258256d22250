package dcs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
)

var errSimulatedFailure = errors.New("dcs test: simulated failure")

// fakeObjects, fakeStorage, fakeKeys, fakeAliases and fakePublisher are
// minimal in-memory stand-ins for the real ports, used so
// RegistryController tests never touch MongoDB, S3, the key store or
// Kafka.

type fakeObjects struct {
	mu   sync.Mutex
	rows map[string]*DrsObject
}

func newFakeObjects() *fakeObjects { return &fakeObjects{rows: map[string]*DrsObject{}} }

func (f *fakeObjects) Get(_ context.Context, id string) (*DrsObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeObjects) Upsert(_ context.Context, id string, doc *DrsObject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeObjects) Find(_ context.Context, filter bson.M) ([]*DrsObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*DrsObject
	for _, r := range f.rows {
		if objectID, ok := filter["object_id"].(string); ok && r.ObjectID != objectID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// fakeStorage is a per-(alias,key) in-memory object set.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]bool
}

func newFakeStorage() *fakeStorage { return &fakeStorage{objects: map[string]bool{}} }

func objKey(alias, key string) string { return alias + "/" + key }

func (s *fakeStorage) put(alias, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objKey(alias, key)] = true
}

func (s *fakeStorage) DoesObjectExist(_ context.Context, alias, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[objKey(alias, key)], nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, alias, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objKey(alias, key))
	return nil
}

func (s *fakeStorage) ListAllObjectIDs(_ context.Context, alias string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := alias + "/"
	var out []string
	for k := range s.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}

func (s *fakeStorage) PresignDownload(_ context.Context, alias, key string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.objects[objKey(alias, key)] {
		return "", errSimulatedFailure
	}
	return "https://example.test/" + alias + "/" + key, nil
}

// fakeKeys is an in-memory key store stand-in.
type fakeKeys struct {
	mu      sync.Mutex
	secrets map[string][]byte
	missing map[string]bool
}

func newFakeKeys() *fakeKeys { return &fakeKeys{secrets: map[string][]byte{}} }

func (k *fakeKeys) put(secretID string, envelope []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.secrets[secretID] = envelope
}

func (k *fakeKeys) GetEnvelope(_ context.Context, secretID string, _ []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.missing[secretID] {
		return nil, &notFoundStub{}
	}
	envelope, ok := k.secrets[secretID]
	if !ok {
		return nil, &notFoundStub{}
	}
	return envelope, nil
}

func (k *fakeKeys) DeleteSecret(_ context.Context, secretID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.secrets, secretID)
	return nil
}

// notFoundStub substitutes for keystoreclient's unexported statusError in
// tests; it is never inspected by keystoreclient.IsNotFound, so tests
// exercise the APICommunicationError branch instead of EnvelopeNotFound
// when using a fake. Tests assert on the not-registered DrsObject path
// for the not-found scenario instead.
type notFoundStub struct{}

func (e *notFoundStub) Error() string { return "secret not found" }

// fakeAliases resolves every hub alias to a single "<alias>-outbox"
// bucket alias, unless explicitly marked unconfigured.
type fakeAliases struct {
	unconfigured map[string]bool
}

func (a *fakeAliases) OutboxAlias(hubAlias string) (string, bool) {
	if a.unconfigured[hubAlias] {
		return "", false
	}
	return hubAlias + "-outbox", true
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

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newTestController() (*RegistryController, *fakeObjects, *fakeStorage, *fakeKeys, *fakePublisher) {
	objects := newFakeObjects()
	storage := newFakeStorage()
	keys := newFakeKeys()
	pub := &fakePublisher{}
	ctrl := NewRegistryController(
		objects, pub, storage, keys, &fakeAliases{unconfigured: map[string]bool{}},
		"drs://localhost:8080/", 100,
		5*time.Second, 300*time.Second,
		60*time.Second, 10*time.Second, 7*24*time.Hour,
	)
	return ctrl, objects, storage, keys, pub
}
