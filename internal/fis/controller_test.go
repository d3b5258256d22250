package fis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
)

var errSimulatedFailure = errors.New("fis test: simulated failure")

// fakeFileIDs, fakeInterrogationFiles, fakeKeyStore, fakeDecryptor and
// fakePublisher are minimal in-memory stand-ins for the real ports, used
// so IngestController/InterrogationHandler tests never touch MongoDB,
// Kafka or the key store.

type fakeFileIDs struct {
	mu   sync.Mutex
	rows map[string]*FileIDRecord
}

func newFakeFileIDs() *fakeFileIDs { return &fakeFileIDs{rows: map[string]*FileIDRecord{}} }

func (f *fakeFileIDs) Get(_ context.Context, id string) (*FileIDRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeFileIDs) Upsert(_ context.Context, id string, doc *FileIDRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

type fakeInterrogationFiles struct {
	mu   sync.Mutex
	rows map[string]*FileUnderInterrogation
}

func newFakeInterrogationFiles() *fakeInterrogationFiles {
	return &fakeInterrogationFiles{rows: map[string]*FileUnderInterrogation{}}
}

func (f *fakeInterrogationFiles) Get(_ context.Context, id string) (*FileUnderInterrogation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeInterrogationFiles) Upsert(_ context.Context, id string, doc *FileUnderInterrogation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.rows[id] = &cp
	return nil
}

func (f *fakeInterrogationFiles) Find(_ context.Context, filter bson.M) ([]*FileUnderInterrogation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FileUnderInterrogation
	for _, r := range f.rows {
		if hub, ok := filter["data_hub"].(string); ok && r.DataHub != hub {
			continue
		}
		if state, ok := filter["state"].(FileUploadState); ok && r.State != state {
			continue
		}
		if interrogated, ok := filter["interrogated"].(bool); ok && r.Interrogated != interrogated {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// fakeKeyStore records every deposited secret and returns a deterministic
// secret id derived from a counter.
type fakeKeyStore struct {
	mu      sync.Mutex
	secrets [][]byte
	nextID  int
	failing bool
}

func (k *fakeKeyStore) PostSecret(_ context.Context, secret []byte) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failing {
		return "", errSimulatedFailure
	}
	k.nextID++
	k.secrets = append(k.secrets, secret)
	return fmt.Sprintf("secret-%d", k.nextID), nil
}

// fakeDecryptor "seals" by JSON-wrapping the plaintext with a marker, and
// opens by reversing that wrap; a payload without the marker fails open,
// letting tests exercise the decryption-error path without real crypto.
type fakeDecryptor struct{}

type sealedEnvelope struct {
	Marker    string `json:"marker"`
	Plaintext []byte `json:"plaintext"`
}

func sealForTest(plaintext []byte) []byte {
	data, _ := json.Marshal(sealedEnvelope{Marker: "sealed", Plaintext: plaintext})
	return data
}

func (fakeDecryptor) Open(sealed []byte) ([]byte, error) {
	var env sealedEnvelope
	if err := json.Unmarshal(sealed, &env); err != nil || env.Marker != "sealed" {
		return nil, errSimulatedFailure
	}
	return env.Plaintext, nil
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

func newTestIngestController() (*IngestController, *fakeFileIDs, *fakeKeyStore, *fakePublisher) {
	fileIDs := newFakeFileIDs()
	ks := &fakeKeyStore{}
	pub := &fakePublisher{}
	ctrl := &IngestController{
		fileIDs:   fileIDs,
		events:    pub,
		keyStore:  ks,
		decryptor: fakeDecryptor{},
	}
	return ctrl, fileIDs, ks, pub
}

func newTestInterrogationHandler() (*InterrogationHandler, *fakeInterrogationFiles, *fakeKeyStore, *fakePublisher) {
	files := newFakeInterrogationFiles()
	ks := &fakeKeyStore{}
	pub := &fakePublisher{}
	handler := &InterrogationHandler{files: files, events: pub, keyStore: ks}
	return handler, files, ks, pub
}

// mustJSON and mustField are test-only helpers for building and inspecting
// wire payloads without repeating marshal/unmarshal boilerplate per test.

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func mustJSON(t testingT, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling test fixture: %v", err)
	}
	return data
}

func mustField(t testingT, payload []byte, field string) string {
	t.Helper()
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	var value string
	if err := json.Unmarshal(decoded[field], &value); err != nil {
		t.Fatalf("unmarshaling field %q: %v", field, err)
	}
	return value
}
