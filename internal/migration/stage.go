package migration

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Stage carries the tmp_v{n}_new_*/tmp_v{n}_old_* collection-renaming
// helpers a single migration step uses to stand up its new collections
// without disturbing the live ones until it atomically swaps them in.
type Stage struct {
	db        *mongo.Database
	newPrefix string
	oldPrefix string
	staged    []string
}

func newStage(db *mongo.Database, version int, unapplying bool) *Stage {
	suffix := ""
	if unapplying {
		suffix = "_unapply"
	}
	tempPrefix := fmt.Sprintf("tmp_v%d%s", version, suffix)

	return &Stage{
		db:        db,
		newPrefix: tempPrefix + "_new",
		oldPrefix: tempPrefix + "_old",
	}
}

// NewCollectionName returns the name of the temporary collection a
// migration step should write its transformed documents into.
func (s *Stage) NewCollectionName(name string) string {
	return s.newPrefix + "_" + name
}

// NewCollection returns the temporary collection a migration step writes
// its transformed documents into.
func (s *Stage) NewCollection(name string) *mongo.Collection {
	return s.db.Collection(s.NewCollectionName(name))
}

// CopyWithTransform streams every document out of the live collection
// named `name`, applies transform to each, and inserts the result into
// the matching tmp_v{n}_new_* collection. transform returning a nil
// document drops that row from the migrated collection.
func (s *Stage) CopyWithTransform(ctx context.Context, name string, transform func(doc bson.M) (bson.M, error)) error {
	source := s.db.Collection(name)
	dest := s.NewCollection(name)

	cursor, err := source.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("migration: reading %s: %w", name, err)
	}
	defer cursor.Close(ctx)

	var batch []any
	const batchSize = 500

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := dest.InsertMany(ctx, batch); err != nil {
			return fmt.Errorf("migration: writing %s: %w", dest.Name(), err)
		}
		batch = batch[:0]
		return nil
	}

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("migration: decoding %s: %w", name, err)
		}

		transformed, err := transform(doc)
		if err != nil {
			return fmt.Errorf("migration: transforming document in %s: %w", name, err)
		}
		if transformed == nil {
			continue
		}

		batch = append(batch, transformed)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("migration: cursor on %s: %w", name, err)
	}

	return flush()
}

// StageCollections atomically swaps every named collection with its
// staged tmp_v{n}_new_* replacement: the live collection is renamed aside
// to tmp_v{n}_old_*, then the new collection is renamed into its place.
// Safe to call multiple times for the same names; a collection already
// renamed aside is left untouched on a repeated call (crash recovery).
func (s *Stage) StageCollections(ctx context.Context, names ...string) error {
	admin := s.db.Client().Database("admin")

	for _, name := range names {
		oldName := s.oldPrefix + "_" + name
		newName := s.NewCollectionName(name)

		if err := s.renameCollection(ctx, admin, name, oldName); err != nil {
			return err
		}
		if err := s.renameCollection(ctx, admin, newName, name); err != nil {
			return err
		}
		s.staged = append(s.staged, name)
	}

	return nil
}

// renameCollection renames a collection within db, tolerating the case
// where the source no longer exists (already renamed by a prior, crashed
// attempt) or the destination already exists (already completed).
func (s *Stage) renameCollection(ctx context.Context, admin *mongo.Database, from, to string) error {
	cmd := bson.D{
		{Key: "renameCollection", Value: s.db.Name() + "." + from},
		{Key: "to", Value: s.db.Name() + "." + to},
	}
	err := admin.RunCommand(ctx, cmd).Err()
	if err == nil {
		return nil
	}
	if isNamespaceNotFound(err) || isNamespaceExists(err) {
		return nil
	}
	return fmt.Errorf("migration: renaming %s to %s: %w", from, to, err)
}

// DropOldCollections drops every tmp_v{n}_old_* collection staged aside by
// StageCollections during this run, reclaiming the old generation of
// data. The Manager never calls it; the old collections stay in place
// until a migration step calls it itself.
func (s *Stage) DropOldCollections(ctx context.Context) error {
	for _, name := range s.staged {
		oldName := s.oldPrefix + "_" + name
		if err := s.db.Collection(oldName).Drop(ctx); err != nil {
			return fmt.Errorf("migration: dropping %s: %w", oldName, err)
		}
	}
	return nil
}

func isNamespaceNotFound(err error) bool {
	var cmdErr mongo.CommandError
	if ok := asCommandError(err, &cmdErr); ok {
		return cmdErr.Code == 26
	}
	return false
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	if ok := asCommandError(err, &cmdErr); ok {
		return cmdErr.Code == 48
	}
	return false
}

func asCommandError(err error, target *mongo.CommandError) bool {
	cmdErr, ok := err.(mongo.CommandError)
	if !ok {
		return false
	}
	*target = cmdErr
	return true
}
