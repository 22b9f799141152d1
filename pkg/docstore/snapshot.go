package docstore

import "reflect"

// Child is one keyed record inside a collection snapshot.
type Child struct {
	Key   string
	Value Record
}

// Snapshot is the state of a path at one point in time. A path with no data
// reports Exists() == false, which callers must treat differently from an
// empty record.
type Snapshot struct {
	path     Path
	exists   bool
	value    Record
	children []Child
}

func (s Snapshot) Path() Path { return s.path }

func (s Snapshot) Exists() bool { return s.exists }

// Key is the record key for record snapshots and the collection name otherwise.
func (s Snapshot) Key() string {
	if s.path.IsRecord() {
		return s.path.Key
	}
	return s.path.Collection
}

// Val returns the record for record snapshots, or a key to record mapping for
// collections. It is nil when the path has no data.
func (s Snapshot) Val() Record {
	if !s.exists {
		return nil
	}
	if s.path.IsRecord() {
		return s.value
	}
	out := make(Record, len(s.children))
	for _, child := range s.children {
		out[child.Key] = child.Value
	}
	return out
}

// Children returns collection entries in query order.
func (s Snapshot) Children() []Child {
	return s.children
}

func (s Snapshot) Len() int {
	if s.path.IsRecord() {
		if s.exists {
			return 1
		}
		return 0
	}
	return len(s.children)
}

func (s Snapshot) equal(other Snapshot) bool {
	return s.path == other.path &&
		s.exists == other.exists &&
		reflect.DeepEqual(s.value, other.value) &&
		reflect.DeepEqual(s.children, other.children)
}

// NewRecordSnapshot builds a record snapshot; a nil value means no data.
func NewRecordSnapshot(collection, key string, value Record) Snapshot {
	return Snapshot{path: Path{Collection: collection, Key: key}, exists: value != nil, value: value}
}

// NewCollectionSnapshot builds a collection snapshot from ordered children.
func NewCollectionSnapshot(collection string, children []Child) Snapshot {
	return Snapshot{path: Path{Collection: collection}, exists: len(children) > 0, children: children}
}
