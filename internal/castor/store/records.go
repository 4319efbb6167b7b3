package store

import (
	"os"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/castorvc/castor/internal/castor/types"
)

// recordTable is the persisted map of chunk hash to ChunkRecord. It is
// loaded once at open and rewritten atomically after mutations; the
// store's mutex serializes all access.
type recordTable struct {
	path    string
	records map[types.Hash]*types.ChunkRecord
}

func loadRecordTable(path string) (*recordTable, error) {
	t := &recordTable{
		path:    path,
		records: make(map[types.Hash]*types.ChunkRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading chunk record table")
	}

	var list []*types.ChunkRecord
	if err := msgpack.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "decoding chunk record table")
	}
	for _, rec := range list {
		t.records[rec.Hash] = rec
	}
	return t, nil
}

// save rewrites the whole table atomically. Records are persisted as a
// flat list; the map is rebuilt on load.
func (t *recordTable) save() error {
	list := make([]*types.ChunkRecord, 0, len(t.records))
	for _, rec := range t.records {
		list = append(list, rec)
	}

	data, err := msgpack.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "encoding chunk record table")
	}
	if err := renameio.WriteFile(t.path, data, 0644); err != nil {
		return errors.Wrap(err, "writing chunk record table")
	}
	return nil
}

func (t *recordTable) get(hash types.Hash) (*types.ChunkRecord, bool) {
	rec, ok := t.records[hash]
	return rec, ok
}

func (t *recordTable) put(rec *types.ChunkRecord) {
	t.records[rec.Hash] = rec
}

func (t *recordTable) delete(hash types.Hash) {
	delete(t.records, hash)
}
