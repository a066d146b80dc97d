// Package ingest turns raw user,entity visit logs into dense ids and the
// adjacency index.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"danny/nn/internal/index"
	"danny/nn/internal/logging"
)

// DefaultChunkSize is the number of log lines handed to one worker.
const DefaultChunkSize = 500000

// ErrMalformed is returned for a log line that is not two fields.
var ErrMalformed = errors.New("malformed log line")

// Mappings maps raw ids to dense ids.
type Mappings struct {
	Users    map[string]int
	Entities map[string]int
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

func readRecord(cr *csv.Reader) ([]string, int, error) {
	rec, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	line, _ := cr.FieldPos(0)
	return rec, line, nil
}

// Reindex assigns consecutive ids from zero to users and entities in the
// order they are first seen and returns the converted visits.
func Reindex(r io.Reader) ([]index.Visit, *Mappings, error) {
	start := time.Now()
	m := &Mappings{Users: make(map[string]int), Entities: make(map[string]int)}
	var visits []index.Visit

	cr := newReader(r)
	for {
		rec, line, err := readRecord(cr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		user, entity := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if user == "" || entity == "" {
			return nil, nil, fmt.Errorf("%w: line %d has an empty id", ErrMalformed, line)
		}
		u, ok := m.Users[user]
		if !ok {
			u = len(m.Users)
			m.Users[user] = u
		}
		e, ok := m.Entities[entity]
		if !ok {
			e = len(m.Entities)
			m.Entities[entity] = e
		}
		visits = append(visits, index.Visit{User: u, Entity: e})
	}

	logging.Info().
		Int("visits", len(visits)).
		Int("users", len(m.Users)).
		Int("entities", len(m.Entities)).
		Dur("elapsed", time.Since(start)).
		Msg("reindexed log")
	return visits, m, nil
}

// WriteVisits writes visits as a converted user,entity log.
func WriteVisits(w io.Writer, visits []index.Visit) error {
	bw := bufio.NewWriter(w)
	for _, v := range visits {
		bw.WriteString(strconv.Itoa(v.User))
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(v.Entity))
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReverseMapping inverts a raw -> dense mapping.
func ReverseMapping(m map[string]int) map[int]string {
	rev := make(map[int]string, len(m))
	for raw, id := range m {
		rev[id] = raw
	}
	return rev
}

// BuildOptions controls BuildIndex.
type BuildOptions struct {
	// OneHot records presence (weight 1) instead of visit counts.
	OneHot bool
	// ChunkSize is lines per worker unit. 0 means DefaultChunkSize.
	ChunkSize int
	// Workers bounds concurrent chunk builders. Must be positive.
	Workers int
}

type record struct {
	user, entity string
	line         int
}

// BuildIndex reads a converted log of non-negative integer ids, builds a
// partial adjacency per chunk on a bounded pool, merges the partials and
// derives the entity-user side by transposition.
func BuildIndex(ctx context.Context, r io.Reader, opts BuildOptions) (*index.Index, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("ingest workers must be positive, got %d", opts.Workers)
	}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	var mu sync.Mutex
	partials := make(map[int]index.Adjacency)
	chunks := 0

	dispatch := func(c []record) {
		slot := chunks
		chunks++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := buildPartial(c, opts.OneHot)
			if err != nil {
				return err
			}
			mu.Lock()
			partials[slot] = p
			mu.Unlock()
			return nil
		})
	}

	cr := newReader(r)
	var cur []record
	lines := 0
	for gctx.Err() == nil {
		rec, line, err := readRecord(cr)
		if err == io.EOF {
			break
		}
		if err != nil {
			g.Wait()
			return nil, err
		}
		cur = append(cur, record{user: rec[0], entity: rec[1], line: line})
		lines++
		if len(cur) == opts.ChunkSize {
			dispatch(cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		dispatch(cur)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ue := make(index.Adjacency)
	for slot := 0; slot < chunks; slot++ {
		ue.Merge(partials[slot], opts.OneHot)
	}
	idx := index.FromUserEntity(ue)

	logging.Info().
		Int("lines", lines).
		Int("chunks", chunks).
		Int("users", idx.NumUsers()).
		Int("entities", idx.NumEntities()).
		Dur("elapsed", time.Since(start)).
		Msg("built index")
	return idx, nil
}

func buildPartial(recs []record, oneHot bool) (index.Adjacency, error) {
	visits := make([]index.Visit, 0, len(recs))
	for _, rec := range recs {
		u, err := parseID(rec.user)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: user: %w", ErrMalformed, rec.line, err)
		}
		e, err := parseID(rec.entity)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: entity: %w", ErrMalformed, rec.line, err)
		}
		visits = append(visits, index.Visit{User: u, Entity: e})
	}
	return index.Build(visits, oneHot).UserEntity, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, fmt.Errorf("negative id %d", id)
	}
	return id, nil
}
