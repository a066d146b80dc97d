// Package source resolves where batch inputs come from: a value already in
// memory, an owned byte buffer, a file, or the artifact store. The kind is
// fixed when a Source is built and resolved once at load time.
package source

import (
	"bytes"
	"context"
	"fmt"

	"danny/nn/internal/index"
	"danny/nn/internal/matrix"
	"danny/nn/internal/neighbors"
	"danny/nn/internal/store"
)

// Kind tags which field of a Source is populated.
type Kind int

const (
	Value Kind = iota
	Buffer
	File
	Store
)

func (k Kind) String() string {
	switch k {
	case Value:
		return "value"
	case Buffer:
		return "buffer"
	case File:
		return "file"
	case Store:
		return "store"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Artifact names the structure a Store source reads.
type Artifact int

const (
	UserEntity Artifact = iota
	EntityUser
	Matrix
)

// Source is a tagged union over the input kinds.
type Source struct {
	kind Kind

	adj index.Adjacency
	mat matrix.Matrix

	data   []byte
	format Format

	path string

	db       *store.Store
	artifact Artifact
}

// FromAdjacency wraps a pre-built adjacency.
func FromAdjacency(a index.Adjacency) Source { return Source{kind: Value, adj: a} }

// FromMatrix wraps a pre-built matrix.
func FromMatrix(m matrix.Matrix) Source { return Source{kind: Value, mat: m} }

// FromBuffer takes ownership of data encoded in format f.
func FromBuffer(data []byte, f Format) Source { return Source{kind: Buffer, data: data, format: f} }

// FromFile reads path, choosing the format from its extension.
func FromFile(path string) Source { return Source{kind: File, path: path} }

// FromStore reads one artifact from the store.
func FromStore(db *store.Store, a Artifact) Source { return Source{kind: Store, db: db, artifact: a} }

func (s Source) Kind() Kind { return s.kind }

func (s Source) String() string {
	switch s.kind {
	case File:
		return "file " + s.path
	case Store:
		return "store " + s.db.Path
	}
	return s.kind.String()
}

func (s Source) decode(v any) error {
	switch s.kind {
	case Buffer:
		return Decode(bytes.NewReader(s.data), s.format, v)
	case File:
		return ReadFile(s.path, v)
	}
	return fmt.Errorf("%w: %s source cannot be decoded", neighbors.ErrInvalidArgument, s.kind)
}

// LoadAdjacency implements neighbors.AdjacencySource.
func (s Source) LoadAdjacency(ctx context.Context) (index.Adjacency, error) {
	switch s.kind {
	case Value:
		if s.adj == nil {
			return nil, fmt.Errorf("%w: value source holds no adjacency", neighbors.ErrInvalidArgument)
		}
		return s.adj, nil
	case Buffer, File:
		var adj index.Adjacency
		if err := s.decode(&adj); err != nil {
			return nil, err
		}
		return adj, nil
	case Store:
		switch s.artifact {
		case UserEntity:
			return s.db.LoadUserEntity(ctx)
		case EntityUser:
			return s.db.LoadEntityUser(ctx)
		}
		return nil, fmt.Errorf("%w: store artifact %d is not an adjacency", neighbors.ErrInvalidArgument, s.artifact)
	}
	return nil, fmt.Errorf("%w: unknown source kind %s", neighbors.ErrInvalidArgument, s.kind)
}

// LoadMatrix implements neighbors.MatrixSource. The result is converted to
// the requested form when the source holds the other one.
func (s Source) LoadMatrix(ctx context.Context, sparse bool) (matrix.Matrix, error) {
	var m matrix.Matrix
	switch s.kind {
	case Value:
		if s.mat == nil {
			return nil, fmt.Errorf("%w: value source holds no matrix", neighbors.ErrInvalidArgument)
		}
		m = s.mat
	case Buffer, File:
		var snap matrix.Snapshot
		if err := s.decode(&snap); err != nil {
			return nil, err
		}
		var err error
		if m, err = matrix.FromSnapshot(snap); err != nil {
			return nil, err
		}
	case Store:
		if s.artifact != Matrix {
			return nil, fmt.Errorf("%w: store artifact %d is not a matrix", neighbors.ErrInvalidArgument, s.artifact)
		}
		return s.db.LoadMatrix(ctx, sparse)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %s", neighbors.ErrInvalidArgument, s.kind)
	}
	return matrix.Convert(m, sparse)
}

// LoadUsers decodes a list of subject ids from a buffer or file.
func (s Source) LoadUsers() ([]int, error) {
	var users []int
	if err := s.decode(&users); err != nil {
		return nil, err
	}
	return users, nil
}
