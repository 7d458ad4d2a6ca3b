package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CollectionPath addresses a collection, e.g. "rooms" or "rooms/abc/messages".
type CollectionPath string

type DocumentID string

const (
	RoomsCollection CollectionPath = "rooms"
	UsersCollection CollectionPath = "users-roles"
)

// DocumentPath addresses a single document inside a collection.
type DocumentPath struct {
	Collection CollectionPath
	ID         DocumentID
}

func (c CollectionPath) Doc(id DocumentID) DocumentPath {
	return DocumentPath{Collection: c, ID: id}
}

// Sub returns the path of a sub-collection nested under the document.
func (p DocumentPath) Sub(name string) CollectionPath {
	return CollectionPath(p.String() + "/" + name)
}

func (p DocumentPath) String() string {
	return string(p.Collection) + "/" + string(p.ID)
}

// ParseDocumentPath splits "a/b/c/d" into collection "a/b/c" and id "d".
func ParseDocumentPath(s string) (DocumentPath, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return DocumentPath{}, fmt.Errorf("%w: document path %q", ErrInvalidArgument, s)
	}
	return DocumentPath{Collection: CollectionPath(s[:idx]), ID: DocumentID(s[idx+1:])}, nil
}

func RoomPath(id RoomID) DocumentPath {
	return RoomsCollection.Doc(DocumentID(id))
}

func RoomRolesPath(id RoomID) CollectionPath {
	return RoomPath(id).Sub("roles")
}

func RoomMessagesPath(id RoomID) CollectionPath {
	return RoomPath(id).Sub("messages")
}

func UserPath(id UserID) DocumentPath {
	return UsersCollection.Doc(DocumentID(id))
}

func UserRolesPath(id UserID) CollectionPath {
	return UserPath(id).Sub("roles")
}

type serverTimestamp struct{}

// ServerTimestamp is a field placeholder that the store replaces with its own
// strictly increasing write time.
var ServerTimestamp = serverTimestamp{}

func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

const timestampKey = "$ts"

// Fields holds the flat key/value content of a document.
type Fields map[string]interface{}

func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f Fields) GetString(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f Fields) GetBool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

func (f Fields) GetTime(key string) (time.Time, bool) {
	t, ok := f[key].(time.Time)
	return t, ok
}

// MarshalJSON encodes time values as {"$ts": RFC3339Nano} so they survive a
// round trip through stores that persist JSON.
func (f Fields) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		switch t := v.(type) {
		case time.Time:
			out[k] = map[string]string{timestampKey: t.UTC().Format(time.RFC3339Nano)}
		case serverTimestamp:
			return nil, fmt.Errorf("field %q: unresolved server timestamp", k)
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for k, msg := range raw {
		v, err := decodeFieldValue(msg)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	*f = out
	return nil
}

func decodeFieldValue(msg json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if obj, ok := v.(map[string]interface{}); ok && len(obj) == 1 {
		if s, ok := obj[timestampKey].(string); ok {
			return time.Parse(time.RFC3339Nano, s)
		}
	}
	return v, nil
}

type Document struct {
	ID         DocumentID
	Fields     Fields
	CreateTime time.Time
}

type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Query shapes a collection read. A document lacking the OrderBy field is
// excluded from the result. Limit <= 0 means no limit.
type Query struct {
	OrderBy   string
	Direction Direction
	Limit     int
}
