package ingest

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"danny/nn/internal/index"
)

const rawLog = `alice,paris
alice,paris
alice,rome
bob,paris
alice,paris
carol,rome
carol,rome
`

func TestReindex(t *testing.T) {
	visits, m, err := Reindex(strings.NewReader(rawLog))
	if err != nil {
		t.Fatal(err)
	}

	wantUsers := map[string]int{"alice": 0, "bob": 1, "carol": 2}
	wantEntities := map[string]int{"paris": 0, "rome": 1}
	if !reflect.DeepEqual(m.Users, wantUsers) {
		t.Errorf("Users = %v, want %v", m.Users, wantUsers)
	}
	if !reflect.DeepEqual(m.Entities, wantEntities) {
		t.Errorf("Entities = %v, want %v", m.Entities, wantEntities)
	}
	if len(visits) != 7 {
		t.Fatalf("got %d visits, want 7", len(visits))
	}
	if visits[5] != (index.Visit{User: 2, Entity: 1}) {
		t.Errorf("visits[5] = %+v", visits[5])
	}
}

func TestReindex_Malformed(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{"one field", "alice,paris\nbob\n"},
		{"three fields", "alice,paris,x\n"},
		{"empty id", "alice, \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Reindex(strings.NewReader(tt.log))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Reindex() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestReverseMapping(t *testing.T) {
	got := ReverseMapping(map[string]int{"alice": 0, "bob": 1})
	want := map[int]string{0: "alice", 1: "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReverseMapping() = %v, want %v", got, want)
	}
}

// Reindexing then building reproduces the hand-computed scenario index.
func TestReindexThenBuild(t *testing.T) {
	visits, _, err := Reindex(strings.NewReader(rawLog))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteVisits(&buf, visits); err != nil {
		t.Fatal(err)
	}

	for _, chunkSize := range []int{1, 2, 3, 100} {
		idx, err := BuildIndex(context.Background(), bytes.NewReader(buf.Bytes()),
			BuildOptions{ChunkSize: chunkSize, Workers: 2})
		if err != nil {
			t.Fatalf("chunk %d: %v", chunkSize, err)
		}
		wantUE := index.Adjacency{0: {0: 3, 1: 1}, 1: {0: 1}, 2: {1: 2}}
		wantEU := index.Adjacency{0: {0: 3, 1: 1}, 1: {0: 1, 2: 2}}
		if !reflect.DeepEqual(idx.UserEntity, wantUE) {
			t.Errorf("chunk %d: UserEntity = %v, want %v", chunkSize, idx.UserEntity, wantUE)
		}
		if !reflect.DeepEqual(idx.EntityUser, wantEU) {
			t.Errorf("chunk %d: EntityUser = %v, want %v", chunkSize, idx.EntityUser, wantEU)
		}
	}
}

func TestBuildIndex_OneHot(t *testing.T) {
	idx, err := BuildIndex(context.Background(), strings.NewReader("0,0\n0,0\n1,0\n0,0\n"),
		BuildOptions{OneHot: true, ChunkSize: 2, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := index.Adjacency{0: {0: 1}, 1: {0: 1}}
	if !reflect.DeepEqual(idx.UserEntity, want) {
		t.Errorf("UserEntity = %v, want %v", idx.UserEntity, want)
	}
}

func TestBuildIndex_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := BuildIndex(ctx, strings.NewReader("0,0\n1,x\n"), BuildOptions{ChunkSize: 1, Workers: 1})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("non-numeric id: error = %v, want ErrMalformed", err)
	}
	if err != nil && !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the line: %v", err)
	}

	_, err = BuildIndex(ctx, strings.NewReader("-1,0\n"), BuildOptions{Workers: 1})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("negative id: error = %v, want ErrMalformed", err)
	}

	if _, err := BuildIndex(ctx, strings.NewReader("0,0\n"), BuildOptions{}); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestBuildIndex_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildIndex(ctx, strings.NewReader("0,0\n"), BuildOptions{Workers: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
