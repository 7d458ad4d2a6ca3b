package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/pkg/backup"

	"go.uber.org/zap"
)

// ArchiveVersion is stamped into every archive written by this package.
const ArchiveVersion = "1"

var ErrTargetNotEmpty = errors.New("restore target already holds rooms or users")

// collectionLayout lists the top-level collections and the sub-collections
// each of their documents may carry.
var collectionLayout = []struct {
	collection domain.CollectionPath
	subs       []string
}{
	{domain.UsersCollection, []string{"roles"}},
	{domain.RoomsCollection, []string{"roles", "messages"}},
}

// Exporter copies the whole chat state out of a document store and back.
type Exporter struct {
	store    ports.DocumentStore
	archives *backup.Service
	logger   *zap.SugaredLogger
}

func NewExporter(store ports.DocumentStore, archives *backup.Service, logger *zap.SugaredLogger) *Exporter {
	return &Exporter{store: store, archives: archives, logger: logger}
}

// Snapshot reads every user, room and their sub-collections. Reads are not
// transactional; writes racing the export may or may not be included.
func (e *Exporter) Snapshot(ctx context.Context) (*backup.Archive, error) {
	archive := &backup.Archive{}
	for _, top := range collectionLayout {
		docs, err := e.store.Query(ctx, top.collection, domain.Query{})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", top.collection, err)
		}
		for _, doc := range docs {
			rec, err := toRecord(top.collection, doc)
			if err != nil {
				return nil, err
			}
			archive.Records = append(archive.Records, rec)

			parent := top.collection.Doc(doc.ID)
			for _, sub := range top.subs {
				path := parent.Sub(sub)
				children, err := e.store.Query(ctx, path, domain.Query{})
				if err != nil {
					return nil, fmt.Errorf("query %s: %w", path, err)
				}
				for _, child := range children {
					rec, err := toRecord(path, child)
					if err != nil {
						return nil, err
					}
					archive.Records = append(archive.Records, rec)
				}
			}
		}
	}
	return archive, nil
}

// Backup takes a snapshot and saves it, returning the archive name.
func (e *Exporter) Backup(ctx context.Context) (string, *backup.Archive, error) {
	archive, err := e.Snapshot(ctx)
	if err != nil {
		return "", nil, err
	}
	name, err := e.archives.Save(ctx, archive)
	if err != nil {
		return "", nil, err
	}
	e.logger.Infow("backup created", "backup_name", name, "records", len(archive.Records))
	return name, archive, nil
}

// Restore loads the named archive into an empty store. Documents get new
// IDs; sub-collection records follow their re-keyed parent. Field values,
// timestamps included, are written as archived.
func (e *Exporter) Restore(ctx context.Context, name string) (int, error) {
	archive, err := e.archives.Load(ctx, name)
	if err != nil {
		return 0, err
	}
	if archive.Version == "" {
		return 0, fmt.Errorf("invalid backup %s: missing version", name)
	}
	if err := e.ensureEmpty(ctx); err != nil {
		return 0, err
	}

	e.logger.Infow("starting restore", "backup_name", name, "records", len(archive.Records))

	rekeyed := make(map[string]string, len(archive.Records))
	for i, rec := range archive.Records {
		collection, err := rekeyCollection(rec.Collection, rekeyed)
		if err != nil {
			return i, err
		}
		var fields domain.Fields
		if err := json.Unmarshal(rec.Fields, &fields); err != nil {
			return i, fmt.Errorf("decode %s/%s: %w", rec.Collection, rec.ID, err)
		}
		id, err := e.store.Add(ctx, collection, fields)
		if err != nil {
			return i, fmt.Errorf("write %s: %w", collection, err)
		}
		rekeyed[rec.Collection+"/"+rec.ID] = collection.Doc(id).String()
	}

	e.logger.Infow("restore completed", "backup_name", name, "records", len(archive.Records))
	return len(archive.Records), nil
}

func (e *Exporter) ensureEmpty(ctx context.Context) error {
	for _, top := range collectionLayout {
		docs, err := e.store.Query(ctx, top.collection, domain.Query{Limit: 1})
		if err != nil {
			return fmt.Errorf("query %s: %w", top.collection, err)
		}
		if len(docs) > 0 {
			return ErrTargetNotEmpty
		}
	}
	return nil
}

func toRecord(collection domain.CollectionPath, doc domain.Document) (backup.Record, error) {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return backup.Record{}, fmt.Errorf("encode %s/%s: %w", collection, doc.ID, err)
	}
	return backup.Record{
		Collection: string(collection),
		ID:         string(doc.ID),
		CreateTime: doc.CreateTime,
		Fields:     fields,
	}, nil
}

// rekeyCollection swaps the parent document of a sub-collection path for
// the document it was restored as.
func rekeyCollection(collection string, rekeyed map[string]string) (domain.CollectionPath, error) {
	idx := strings.LastIndex(collection, "/")
	if idx < 0 {
		return domain.CollectionPath(collection), nil
	}
	parent, ok := rekeyed[collection[:idx]]
	if !ok {
		return "", fmt.Errorf("record in %s precedes its parent document", collection)
	}
	return domain.CollectionPath(parent + collection[idx:]), nil
}
