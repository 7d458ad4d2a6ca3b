package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const (
	namePrefix = "backup-"
	nameSuffix = ".json"
	nameLayout = "20060102-150405.000000000"
)

var ErrInvalidName = errors.New("invalid backup name")

// Record is one stored document. Collection is the full collection path the
// document lives in, e.g. "rooms/abc/messages".
type Record struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	CreateTime time.Time       `json:"create_time"`
	Fields     json.RawMessage `json:"fields"`
}

// Archive is a point-in-time export. Parent documents precede the records of
// their sub-collections.
type Archive struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Records   []Record  `json:"records"`
}

// Count returns the number of records per collection, with sub-collections
// folded by name: "rooms/abc/messages" counts as "rooms/*/messages".
func (a *Archive) Count() map[string]int {
	out := make(map[string]int)
	for _, r := range a.Records {
		out[collectionKind(r.Collection)]++
	}
	return out
}

func collectionKind(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i += 2 {
		parts[i] = "*"
	}
	return strings.Join(parts, "/")
}

// Storage keeps named archive blobs.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type Service struct {
	storage Storage
	version string
	now     func() time.Time
}

func NewService(storage Storage, version string) *Service {
	return &Service{
		storage: storage,
		version: version,
		now:     time.Now,
	}
}

// Save stamps the archive and writes it under a time-ordered name.
func (s *Service) Save(ctx context.Context, archive *Archive) (string, error) {
	archive.Version = s.version
	archive.Timestamp = s.now().UTC()

	data, err := json.Marshal(archive)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}

	name := namePrefix + archive.Timestamp.Format(nameLayout) + nameSuffix
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save backup: %w", err)
	}
	return name, nil
}

func (s *Service) Load(ctx context.Context, name string) (*Archive, error) {
	if !IsArchiveName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer reader.Close()

	var archive Archive
	if err := json.NewDecoder(reader).Decode(&archive); err != nil {
		return nil, fmt.Errorf("failed to decode backup %s: %w", name, err)
	}
	return &archive, nil
}

// List returns archive names, oldest first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if IsArchiveName(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, name string) error {
	if !IsArchiveName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return s.storage.Delete(ctx, name)
}

// Prune deletes all but the newest keep archives and returns the deleted
// names. keep <= 0 deletes nothing.
func (s *Service) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) <= keep {
		return nil, nil
	}
	stale := names[:len(names)-keep]
	for _, name := range stale {
		if err := s.storage.Delete(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to delete backup %s: %w", name, err)
		}
	}
	return stale, nil
}

// IsArchiveName reports whether name looks like a name produced by Save.
func IsArchiveName(name string) bool {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	_, err := time.Parse(nameLayout, stamp)
	return err == nil
}
