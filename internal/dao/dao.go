// Package dao provides a generic per-entity document store DAO over MongoDB:
// upsert / find-one / find-all / delete plus a change-data-capture hook, the
// shape every service-owned collection (FileUploadBox, FileUpload, DrsObject,
// FileMetadata, ...) is built from.
package dao

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/marmos91/dittofs/internal/logger"
)

// ErrNotFound is returned by Get when no document matches the given id.
var ErrNotFound = errors.New("dao: document not found")

// Identifiable is implemented by every DTO stored through a DAO; DocumentID
// returns the value stored in the document's `_id` field.
type Identifiable interface {
	DocumentID() string
}

// ChangeHandler is invoked by Watch with each change event's operation type
// and its fullDocument field. The stream is opened without a full-document
// lookup, so doc is populated for insert and replace events only; for
// update and delete events it is the zero value.
type ChangeHandler[T any] func(ctx context.Context, changeType string, doc *T)

// DAO is a generic, per-collection document store with upsert/find/delete
// semantics. T must be a struct with bson tags; id values are stored as the
// document's `_id` field (a string, never a Mongo ObjectID, matching the
// opaque UUID/accession identifiers used across the pipeline).
type DAO[T any] struct {
	collection *mongo.Collection
}

// New wraps a *mongo.Collection in a typed DAO.
func New[T any](collection *mongo.Collection) *DAO[T] {
	return &DAO[T]{collection: collection}
}

// idDoc builds the {_id: id} filter used by every single-document operation.
func idDoc(id string) bson.M {
	return bson.M{"_id": id}
}

// Upsert replaces the document with the given id, creating it if absent.
func (d *DAO[T]) Upsert(ctx context.Context, id string, doc *T) error {
	opts := options.Replace().SetUpsert(true)
	_, err := d.collection.ReplaceOne(ctx, idDoc(id), doc, opts)
	if err != nil {
		return fmt.Errorf("dao upsert %s: %w", d.collection.Name(), err)
	}
	return nil
}

// Get loads the document with the given id, or ErrNotFound.
func (d *DAO[T]) Get(ctx context.Context, id string) (*T, error) {
	var doc T
	err := d.collection.FindOne(ctx, idDoc(id)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dao get %s: %w", d.collection.Name(), err)
	}
	return &doc, nil
}

// Exists reports whether a document with the given id exists, without
// paying the cost of decoding it.
func (d *DAO[T]) Exists(ctx context.Context, id string) (bool, error) {
	n, err := d.collection.CountDocuments(ctx, idDoc(id), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("dao exists %s: %w", d.collection.Name(), err)
	}
	return n > 0, nil
}

// Find returns every document matching filter. A nil filter matches all
// documents in the collection.
func (d *DAO[T]) Find(ctx context.Context, filter bson.M) ([]*T, error) {
	if filter == nil {
		filter = bson.M{}
	}

	cursor, err := d.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("dao find %s: %w", d.collection.Name(), err)
	}
	defer cursor.Close(ctx)

	var docs []*T
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("dao decode %s: %w", d.collection.Name(), err)
		}
		docs = append(docs, &doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("dao cursor %s: %w", d.collection.Name(), err)
	}

	return docs, nil
}

// Delete removes the document with the given id. Deleting a document that
// does not exist is not an error — callers rely on this for idempotent
// teardown paths (already-deleted file, already-aborted upload).
func (d *DAO[T]) Delete(ctx context.Context, id string) error {
	_, err := d.collection.DeleteOne(ctx, idDoc(id))
	if err != nil {
		return fmt.Errorf("dao delete %s: %w", d.collection.Name(), err)
	}
	return nil
}

// UpdateFields applies a partial $set update to the document with the given
// id, used for single-field mutations (e.g. DrsObject.last_accessed) that
// should not require reading and rewriting the whole document.
func (d *DAO[T]) UpdateFields(ctx context.Context, id string, fields bson.M) error {
	_, err := d.collection.UpdateOne(ctx, idDoc(id), bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("dao update %s: %w", d.collection.Name(), err)
	}
	return nil
}

// Watch starts a change stream over the collection and invokes handler for
// every change event, whatever its operation type, until ctx is cancelled. Intended to run
// in a long-lived goroutine per service; the caller is responsible for
// restart-on-error semantics (change streams do not survive a dropped
// connection on their own).
func Watch[T any](ctx context.Context, collection *mongo.Collection, handler ChangeHandler[T]) error {
	stream, err := collection.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return fmt.Errorf("dao watch %s: %w", collection.Name(), err)
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var event struct {
			OperationType string `bson:"operationType"`
			FullDocument  T      `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			logger.ErrorCtx(ctx, "failed to decode change stream event",
				logger.KeyError, err.Error(), "collection", collection.Name())
			continue
		}
		handler(ctx, event.OperationType, &event.FullDocument)
	}

	return stream.Err()
}
