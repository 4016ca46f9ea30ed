package coordinator

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes = []byte("nodes")
	bucketSeq   = []byte("seq")
)

// storedNode is the on-disk representation of one coordination-store node.
type storedNode struct {
	Data    []byte `json:"data"`
	Version int32  `json:"version"`
	Mode    Mode   `json:"mode"`
}

// treeStore is the BoltDB-backed hierarchical node tree underlying the
// embedded coordinator: one bucket keyed by full path holds node content,
// a second tracks the next sequence number per parent for
// EphemeralSequential children.
type treeStore struct {
	db *bolt.DB
}

func newTreeStore(dataDir string) (*treeStore, error) {
	dbPath := filepath.Join(dataDir, "coordinator.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open coordinator store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketNodes); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSeq); err != nil {
			return err
		}
		nodes := tx.Bucket(bucketNodes)
		if nodes.Get([]byte("/")) == nil {
			data, err := json.Marshal(storedNode{Mode: Persistent, Version: 0})
			if err != nil {
				return err
			}
			return nodes.Put([]byte("/"), data)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &treeStore{db: db}, nil
}

func (s *treeStore) close() error {
	return s.db.Close()
}

// create writes path with the given data and mode, creating any missing
// persistent ancestors. For EphemeralSequential it appends a monotonically
// increasing, ten-digit, zero-padded sequence number to path's base name
// and returns the resulting final path.
func (s *treeStore) create(path string, data []byte, mode Mode) (string, int32, error) {
	path = cleanPath(path)
	var finalPath string
	var version int32

	err := s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		seq := tx.Bucket(bucketSeq)

		parent := parentPath(path)
		if err := s.ensureParents(tx, parent); err != nil {
			return err
		}

		target := path
		if mode == EphemeralSequential {
			next, err := nextSeq(seq, parent)
			if err != nil {
				return err
			}
			target = fmt.Sprintf("%s%010d", path, next)
		}

		if nodes.Get([]byte(target)) != nil {
			return ErrNodeExists
		}

		sn := storedNode{Data: data, Version: 0, Mode: mode}
		encoded, err := json.Marshal(sn)
		if err != nil {
			return err
		}
		if err := nodes.Put([]byte(target), encoded); err != nil {
			return err
		}

		finalPath = target
		version = 0
		return nil
	})

	return finalPath, version, err
}

// ensureParents creates any missing persistent ancestors of parent,
// mkdir -p style. Must be called with the transaction already holding the
// write lock on bucketNodes.
func (s *treeStore) ensureParents(tx *bolt.Tx, parent string) error {
	if parent == "" || parent == "/" {
		return nil
	}
	nodes := tx.Bucket(bucketNodes)
	if nodes.Get([]byte(parent)) != nil {
		return nil
	}
	if err := s.ensureParents(tx, parentPath(parent)); err != nil {
		return err
	}
	sn := storedNode{Mode: Persistent, Version: 0}
	encoded, err := json.Marshal(sn)
	if err != nil {
		return err
	}
	return nodes.Put([]byte(parent), encoded)
}

func nextSeq(seq *bolt.Bucket, parent string) (int64, error) {
	key := []byte(parent)
	var n int64
	if raw := seq.Get(key); raw != nil {
		n = int64(binary.BigEndian.Uint64(raw))
	}
	n++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	if err := seq.Put(key, buf); err != nil {
		return 0, err
	}
	return n - 1, nil
}

func (s *treeStore) delete(path string, version int32) error {
	path = cleanPath(path)
	return s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		raw := nodes.Get([]byte(path))
		if raw == nil {
			return ErrNoNode
		}
		if version != AnyVersion {
			var sn storedNode
			if err := json.Unmarshal(raw, &sn); err != nil {
				return err
			}
			if sn.Version != version {
				return ErrBadVersion
			}
		}
		return nodes.Delete([]byte(path))
	})
}

func (s *treeStore) getData(path string) ([]byte, int32, error) {
	path = cleanPath(path)
	var data []byte
	var version int32
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketNodes).Get([]byte(path))
		if raw == nil {
			return ErrNoNode
		}
		var sn storedNode
		if err := json.Unmarshal(raw, &sn); err != nil {
			return err
		}
		data, version = sn.Data, sn.Version
		return nil
	})
	return data, version, err
}

func (s *treeStore) setData(path string, data []byte, version int32) (int32, error) {
	path = cleanPath(path)
	var newVersion int32
	err := s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		raw := nodes.Get([]byte(path))
		if raw == nil {
			return ErrNoNode
		}
		var sn storedNode
		if err := json.Unmarshal(raw, &sn); err != nil {
			return err
		}
		if version != AnyVersion && sn.Version != version {
			return ErrBadVersion
		}
		sn.Data = data
		sn.Version++
		encoded, err := json.Marshal(sn)
		if err != nil {
			return err
		}
		newVersion = sn.Version
		return nodes.Put([]byte(path), encoded)
	})
	return newVersion, err
}

// getChildren returns path's immediate children in the order they're
// found on disk; callers sort when lexical order matters.
func (s *treeStore) getChildren(path string) ([]string, error) {
	path = cleanPath(path)
	var children []string
	err := s.db.View(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		if nodes.Get([]byte(path)) == nil {
			return ErrNoNode
		}

		prefix := path
		if prefix != "/" {
			prefix += "/"
		}
		c := nodes.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			rest := string(k[len(prefix):])
			if rest == "" || containsSlash(rest) {
				continue
			}
			children = append(children, rest)
		}
		return nil
	})
	return children, err
}

func hasPrefix(k []byte, prefix string) bool {
	if len(k) < len(prefix) {
		return false
	}
	return string(k[:len(prefix)]) == prefix
}

func containsSlash(s string) bool {
	for _, r := range s {
		if r == '/' {
			return true
		}
	}
	return false
}
