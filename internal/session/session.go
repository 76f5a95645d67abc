// Package session is the unit of work over a graph database. It compiles an
// object graph into one statement, runs it in a write transaction, verifies
// optimistic locks and correlates generated ids back onto the objects.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/ogm/internal/cache"
	"github.com/rohankatakam/ogm/internal/cypher"
	"github.com/rohankatakam/ogm/internal/errors"
	"github.com/rohankatakam/ogm/internal/graph"
	"github.com/rohankatakam/ogm/internal/mapping"
	"github.com/rohankatakam/ogm/internal/metadata"
)

const defaultKeyPrefix = "ogm"

// ReadTransactor is implemented by transactors that can route reads
// separately. Reload falls back to a write transaction otherwise.
type ReadTransactor interface {
	ReadTransaction(ctx context.Context, work func(ctx context.Context, tx graph.Executor) error) error
}

// Session tracks persisted objects and their snapshots. It is safe for use
// by one goroutine at a time per object graph; separate sessions never
// share compilation state.
type Session struct {
	meta   metadata.EntityMetadata
	tx     graph.Transactor
	store  cache.Store
	logger *logrus.Logger
	depth  int
	prefix string

	mu       sync.Mutex
	identity map[cypher.Reference]any
	deleted  map[cypher.Reference]struct{}
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithDepth sets the default save depth
func WithDepth(depth int) Option {
	return func(s *Session) { s.depth = depth }
}

// WithKeyPrefix sets the prefix of snapshot cache keys
func WithKeyPrefix(prefix string) Option {
	return func(s *Session) { s.prefix = prefix }
}

// New creates a session. A nil store keeps snapshots in process memory.
func New(meta metadata.EntityMetadata, tx graph.Transactor, store cache.Store, opts ...Option) *Session {
	s := &Session{
		meta:     meta,
		tx:       tx,
		store:    store,
		logger:   logrus.StandardLogger(),
		depth:    mapping.Unlimited,
		prefix:   defaultKeyPrefix,
		identity: make(map[cypher.Reference]any),
		deleted:  make(map[cypher.Reference]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = cache.NewMemoryStore(0, s.logger)
	}
	return s
}

type saveOptions struct {
	depth int
}

// SaveOption adjusts a single Save call
type SaveOption func(*saveOptions)

// Depth limits how many relationship hops from the root are written
func Depth(depth int) SaveOption {
	return func(o *saveOptions) { o.depth = depth }
}

// Save writes obj and the objects reachable from it. On success new objects
// carry their generated ids and guarded objects their incremented versions.
// On ErrConflict no object is modified and the snapshots of the conflicting
// objects are dropped, so Reload must be called before retrying.
func (s *Session) Save(ctx context.Context, obj any, opts ...SaveOption) error {
	o := saveOptions{depth: s.depth}
	for _, opt := range opts {
		opt(&o)
	}
	log := s.operationLogger("save")

	reader := s.snapshotReader(ctx, log)
	plan, err := mapping.NewMapper(s.meta, reader).Save(obj, o.depth)
	if err != nil {
		return err
	}
	if plan.Compilation.Empty() {
		log.Debug("Nothing to save")
		return nil
	}
	ids, err := s.execute(ctx, log, plan)
	if err != nil {
		return err
	}
	return s.applySave(ctx, log, plan, ids, reader)
}

// Delete removes a stored node with all its relationships, or a stored
// relationship entity.
func (s *Session) Delete(ctx context.Context, obj any) error {
	log := s.operationLogger("delete")

	plan, err := mapping.NewMapper(s.meta, nil).Delete(obj)
	if err != nil {
		return err
	}
	if _, err := s.execute(ctx, log, plan); err != nil {
		return err
	}

	keys := make([]string, 0, len(plan.Deleted))
	s.mu.Lock()
	for _, e := range plan.Deleted {
		delete(s.identity, e.Reference)
		s.deleted[e.Reference] = struct{}{}
		keys = append(keys, s.snapshotKey(e.Reference))
	}
	s.mu.Unlock()
	if err := s.store.Delete(ctx, keys...); err != nil {
		log.WithError(err).Warn("Failed to drop snapshots of deleted elements")
	}
	log.WithField("deleted", len(plan.Deleted)).Info("Delete committed")
	return nil
}

// Track registers an object that is already stored and in sync with the
// database, recording its current state as the snapshot.
func (s *Session) Track(ctx context.Context, obj any) error {
	class, ref, err := s.storedReference(obj)
	if err != nil {
		return err
	}
	snap := mapping.NewSnapshot(s.meta, class, obj, nil, true)
	if err := s.putSnapshot(ctx, ref, snap); err != nil {
		return err
	}
	s.mu.Lock()
	s.identity[ref] = obj
	s.mu.Unlock()
	return nil
}

// Tracked returns the object registered for a stored node id
func (s *Session) Tracked(id int64) (any, bool) {
	return s.lookup(cypher.NewIdentifierManager().ReferenceFor(id))
}

// TrackedRelationship returns the relationship entity registered for id
func (s *Session) TrackedRelationship(id int64) (any, bool) {
	return s.lookup(cypher.NewIdentifierManager().RelationshipReferenceFor(id))
}

func (s *Session) lookup(ref cypher.Reference) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.identity[ref]
	return obj, ok
}

// execute runs the plan in one write transaction. Nothing outside the
// transaction is mutated here since the driver may retry the work.
func (s *Session) execute(ctx context.Context, log *logrus.Entry, plan *mapping.Plan) (map[cypher.Reference]int64, error) {
	comp := plan.Compilation
	log = log.WithFields(logrus.Fields{
		"statement_len": len(comp.Statement.Text),
		"new_refs":      len(comp.NewReferences),
		"guards":        len(comp.Guards),
	})
	log.WithField("statement", comp.Statement.Text).Debug("Executing statement")

	var ids map[cypher.Reference]int64
	var outcome LockOutcome
	err := s.tx.WriteTransaction(ctx, func(ctx context.Context, tx graph.Executor) error {
		guard := NewLockGuard(comp)
		if err := guard.Begin(); err != nil {
			return err
		}
		res, err := tx.Execute(ctx, comp.Statement)
		if err != nil {
			return err
		}
		outcome, err = guard.Check(res)
		if err != nil {
			return err
		}
		if err := outcome.Err(); err != nil {
			return err
		}
		correlated, err := NewReturnCorrelator(comp).Correlate(res.Rows)
		if err != nil {
			return err
		}
		ids = correlated
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			log.WithField("conflicts", len(outcome.Conflicts)).Warn("Optimistic lock rejected, invalidating snapshots")
			s.invalidate(ctx, log, outcome.Conflicts)
		}
		return nil, err
	}
	return ids, nil
}

func (s *Session) applySave(ctx context.Context, log *logrus.Entry, plan *mapping.Plan, ids map[cypher.Reference]int64, reader *snapshotReader) error {
	comp := plan.Compilation
	if err := NewReturnCorrelator(comp).Assign(ids, plan.Context, s.meta); err != nil {
		return err
	}
	for _, g := range comp.Guards {
		if g.Delete {
			continue
		}
		if e, ok := plan.Entry(g.Reference); ok {
			e.Class.SetVersion(e.Object, g.Expected+1)
		}
	}

	idm := cypher.NewIdentifierManager()
	stored := make(map[cypher.Reference]any, len(plan.Entries))
	for _, e := range plan.Entries {
		ref := e.Reference
		if e.New {
			id, ok := e.Class.Identity(e.Object)
			if !ok {
				// class declares no identity field
				continue
			}
			if e.Class.IsRelationshipEntity() {
				ref = idm.RelationshipReferenceFor(id)
			} else {
				ref = idm.ReferenceFor(id)
			}
		}
		previous, _ := reader.Snapshot(ref)
		snap := mapping.NewSnapshot(s.meta, e.Class, e.Object, previous, e.EdgesSynced)
		if err := s.putSnapshot(ctx, ref, snap); err != nil {
			log.WithError(err).WithField("ref", ref.String()).Warn("Failed to store snapshot")
			if derr := s.store.Delete(ctx, s.snapshotKey(ref)); derr != nil {
				log.WithError(derr).Warn("Failed to drop stale snapshot")
			}
		}
		stored[ref] = e.Object
	}

	s.mu.Lock()
	for ref, obj := range stored {
		s.identity[ref] = obj
	}
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"written": len(plan.Entries),
		"created": len(ids),
	}).Info("Save committed")
	return nil
}

func (s *Session) invalidate(ctx context.Context, log *logrus.Entry, conflicts []Conflict) {
	if len(conflicts) == 0 {
		return
	}
	keys := make([]string, len(conflicts))
	s.mu.Lock()
	for i, c := range conflicts {
		delete(s.identity, c.Reference)
		keys[i] = s.snapshotKey(c.Reference)
	}
	s.mu.Unlock()
	if err := s.store.Delete(ctx, keys...); err != nil {
		log.WithError(err).Error("Failed to invalidate snapshots")
	}
}

func (s *Session) storedReference(obj any) (metadata.Class, cypher.Reference, error) {
	class, ok := s.meta.Lookup(obj)
	if !ok {
		return nil, cypher.Reference{}, errors.ValidationErrorf("no metadata declared for %T", obj)
	}
	id, ok := class.Identity(obj)
	if !ok {
		return nil, cypher.Reference{}, errors.ValidationErrorf("%s has no identity", class.Name())
	}
	idm := cypher.NewIdentifierManager()
	if class.IsRelationshipEntity() {
		return class, idm.RelationshipReferenceFor(id), nil
	}
	return class, idm.ReferenceFor(id), nil
}

func (s *Session) operationLogger(operation string) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"operation_id": uuid.NewString(),
		"operation":    operation,
	})
}

func (s *Session) snapshotKey(ref cypher.Reference) string {
	return cache.Key(s.prefix, "snapshot", ref.String())
}

func (s *Session) putSnapshot(ctx context.Context, ref cypher.Reference, snap *mapping.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.InternalErrorf("failed to encode snapshot of %s: %v", ref, err)
	}
	return s.store.Set(ctx, s.snapshotKey(ref), data)
}

func (s *Session) loadSnapshot(ctx context.Context, ref cypher.Reference) (*mapping.Snapshot, error) {
	data, found, err := s.store.Get(ctx, s.snapshotKey(ref))
	if err != nil || !found {
		return nil, err
	}
	var snap mapping.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	// drop edges to elements this session deleted
	s.mu.Lock()
	defer s.mu.Unlock()
	idm := cypher.NewIdentifierManager()
	kept := snap.Edges[:0]
	for _, e := range snap.Edges {
		if _, gone := s.deleted[idm.ReferenceFor(e.Other)]; gone {
			continue
		}
		if e.ID != nil {
			if _, gone := s.deleted[idm.RelationshipReferenceFor(*e.ID)]; gone {
				continue
			}
		}
		kept = append(kept, e)
	}
	snap.Edges = kept
	return &snap, nil
}

// snapshotReader adapts the store to the mapper for one operation. Lookups
// are memoized so that the diff and the post-commit snapshot see the same
// previous state.
type snapshotReader struct {
	ctx   context.Context
	s     *Session
	log   *logrus.Entry
	cache map[cypher.Reference]*mapping.Snapshot
}

func (s *Session) snapshotReader(ctx context.Context, log *logrus.Entry) *snapshotReader {
	return &snapshotReader{ctx: ctx, s: s, log: log, cache: make(map[cypher.Reference]*mapping.Snapshot)}
}

func (r *snapshotReader) Snapshot(ref cypher.Reference) (*mapping.Snapshot, bool) {
	if snap, ok := r.cache[ref]; ok {
		return snap, snap != nil
	}
	snap, err := r.s.loadSnapshot(r.ctx, ref)
	if err != nil {
		// a missing snapshot writes every property, which is always correct
		r.log.WithError(err).WithField("ref", ref.String()).Warn("Failed to load snapshot")
		snap = nil
	}
	r.cache[ref] = snap
	return snap, snap != nil
}
