package kindred

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection for companion and memory persistence.
// All writes that must be atomic together run inside one transaction.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database and runs migrations.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("kindred: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("kindred: open db: %w", err)
	}

	// Single connection serializes writers; reinforcement and decay can
	// never interleave on a row.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("kindred: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return err
	}

	if version < 1 {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS companions (
				id                  TEXT    PRIMARY KEY,
				name                TEXT    NOT NULL DEFAULT '',
				bonding             REAL    NOT NULL DEFAULT 0,
				trust               REAL    NOT NULL DEFAULT 0,
				dependency          REAL    NOT NULL DEFAULT 0,
				intensity           INTEGER NOT NULL DEFAULT 0,
				current_state       TEXT    NOT NULL DEFAULT 'nascent',
				knowledge_domains   TEXT    NOT NULL DEFAULT '[]',
				interaction_count   INTEGER NOT NULL DEFAULT 0,
				created_at          TEXT    NOT NULL,
				last_interaction_at TEXT    NOT NULL
			);

			CREATE TABLE IF NOT EXISTS memories (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				companion_id        TEXT    NOT NULL REFERENCES companions(id) ON DELETE CASCADE,
				type                TEXT    NOT NULL,
				author              TEXT    NOT NULL DEFAULT 'system',
				content             TEXT    NOT NULL,
				emotional_weight    REAL    NOT NULL,
				decay_rate          REAL    NOT NULL,
				reinforcement_count INTEGER NOT NULL DEFAULT 0,
				created_at          TEXT    NOT NULL,
				last_accessed_at    TEXT    NOT NULL,
				decayed_at          TEXT    NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_memories_companion ON memories(companion_id);
			CREATE INDEX IF NOT EXISTS idx_memories_accessed  ON memories(companion_id, last_accessed_at);
		`); err != nil {
			return err
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (1)`); err != nil {
			return err
		}
	}

	return nil
}

// --- Time encoding ---

// timeLayout is fixed-width so lexical order in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// --- Companion CRUD ---

const companionSelectCols = `id, name, bonding, trust, dependency, intensity, current_state,
	knowledge_domains, interaction_count, created_at, last_interaction_at`

// InsertCompanion stores a new companion.
func (s *Store) InsertCompanion(ctx context.Context, c Companion) error {
	c = normalizeCompanion(c)
	domains, err := json.Marshal(c.KnowledgeDomains)
	if err != nil {
		return fmt.Errorf("kindred: encode domains: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO companions (`+companionSelectCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Metrics.Bonding, c.Metrics.Trust, c.Metrics.Dependency,
		c.EmotionalIntensity, string(c.CurrentState), string(domains), c.InteractionCount,
		formatTime(c.CreatedAt), formatTime(c.LastInteractionAt),
	)
	if err != nil {
		return fmt.Errorf("kindred: insert companion: %w", err)
	}
	return nil
}

// GetCompanion loads a companion by ID. Returns ErrCompanionNotFound if absent.
func (s *Store) GetCompanion(ctx context.Context, id string) (Companion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+companionSelectCols+` FROM companions WHERE id = ?`, id)
	c, err := scanCompanion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Companion{}, fmt.Errorf("kindred: companion %s: %w", id, ErrCompanionNotFound)
	}
	if err != nil {
		return Companion{}, fmt.Errorf("kindred: get companion: %w", err)
	}
	return c, nil
}

// UpdateCompanion persists metrics and derived fields. Metrics and intensity
// are clamped here so an out-of-range value is never written.
func (s *Store) UpdateCompanion(ctx context.Context, c Companion) error {
	return updateCompanion(ctx, s.db, c)
}

// ListCompanionIDs returns every stored companion ID.
func (s *Store) ListCompanionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM companions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateCompanion(ctx context.Context, ex execer, c Companion) error {
	c = normalizeCompanion(c)
	domains, err := json.Marshal(c.KnowledgeDomains)
	if err != nil {
		return fmt.Errorf("kindred: encode domains: %w", err)
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE companions
		SET name = ?, bonding = ?, trust = ?, dependency = ?, intensity = ?, current_state = ?,
		    knowledge_domains = ?, interaction_count = ?, last_interaction_at = ?
		WHERE id = ?`,
		c.Name, c.Metrics.Bonding, c.Metrics.Trust, c.Metrics.Dependency, c.EmotionalIntensity,
		string(c.CurrentState), string(domains), c.InteractionCount, formatTime(c.LastInteractionAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("kindred: update companion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("kindred: companion %s: %w", c.ID, ErrCompanionNotFound)
	}
	return nil
}

// normalizeCompanion enforces the write-boundary invariants.
func normalizeCompanion(c Companion) Companion {
	c.Metrics = clampMetrics(c.Metrics)
	c.EmotionalIntensity = Intensity(c.Metrics)
	if c.CurrentState == "" {
		c.CurrentState = InferState(c.Metrics)
	}
	if c.KnowledgeDomains == nil {
		c.KnowledgeDomains = []string{}
	}
	return c
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompanion(r rowScanner) (Companion, error) {
	var c Companion
	var state, domains, created, lastInteraction string
	if err := r.Scan(
		&c.ID, &c.Name, &c.Metrics.Bonding, &c.Metrics.Trust, &c.Metrics.Dependency,
		&c.EmotionalIntensity, &state, &domains, &c.InteractionCount, &created, &lastInteraction,
	); err != nil {
		return c, err
	}
	c.CurrentState = EmotionalState(state)
	c.CreatedAt = parseTime(created)
	c.LastInteractionAt = parseTime(lastInteraction)
	if err := json.Unmarshal([]byte(domains), &c.KnowledgeDomains); err != nil {
		return c, fmt.Errorf("decode domains: %w", err)
	}
	return c, nil
}

// --- Memory CRUD ---

const memorySelectCols = `id, companion_id, type, author, content, emotional_weight, decay_rate,
	reinforcement_count, created_at, last_accessed_at`

// InsertMemory stores a new memory row and returns its ID.
func (s *Store) InsertMemory(ctx context.Context, m Memory) (int64, error) {
	return insertMemory(ctx, s.db, m)
}

func insertMemory(ctx context.Context, ex execer, m Memory) (int64, error) {
	if m.CompanionID == "" {
		return 0, fmt.Errorf("kindred: insert memory: empty companion id")
	}
	accessed := m.LastAccessedAt
	if accessed.IsZero() {
		accessed = m.CreatedAt
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO memories (companion_id, type, author, content, emotional_weight, decay_rate,
		                      reinforcement_count, created_at, last_accessed_at, decayed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.CompanionID, string(m.Type), string(m.Author), m.Content,
		math.Max(0, math.Min(1, m.EmotionalWeight)), math.Max(0, m.DecayRate), m.ReinforcementCount,
		formatTime(m.CreatedAt), formatTime(accessed), formatTime(accessed),
	)
	if err != nil {
		return 0, fmt.Errorf("kindred: insert memory: %w", err)
	}
	return res.LastInsertId()
}

// GetMemory loads a memory by ID. Returns ErrMemoryNotFound if absent.
func (s *Store) GetMemory(ctx context.Context, id int64) (Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memorySelectCols+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Memory{}, fmt.Errorf("kindred: memory %d: %w", id, ErrMemoryNotFound)
	}
	if err != nil {
		return Memory{}, fmt.Errorf("kindred: get memory: %w", err)
	}
	return m, nil
}

func scanMemory(r rowScanner) (Memory, error) {
	var m Memory
	var typ, author, created, accessed string
	if err := r.Scan(
		&m.ID, &m.CompanionID, &typ, &author, &m.Content, &m.EmotionalWeight, &m.DecayRate,
		&m.ReinforcementCount, &created, &accessed,
	); err != nil {
		return m, err
	}
	m.Type = MemoryType(typ)
	m.Author = Author(author)
	m.CreatedAt = parseTime(created)
	m.LastAccessedAt = parseTime(accessed)
	return m, nil
}

// MemoryOrder selects the sort order of QueryMemories.
type MemoryOrder int

const (
	OrderRecentlyAccessed MemoryOrder = iota // last_accessed_at DESC
	OrderNewest                              // created_at DESC
	OrderStrongest                           // emotional_weight DESC
)

func (o MemoryOrder) clause() string {
	switch o {
	case OrderNewest:
		return `created_at DESC, id DESC`
	case OrderStrongest:
		return `emotional_weight DESC, id DESC`
	default:
		return `last_accessed_at DESC, id DESC`
	}
}

// MemoryQuery is the predicate, order and limit for QueryMemories.
type MemoryQuery struct {
	MinWeight float64 // strictly greater than; 0 returns everything
	Types     []MemoryType
	Authors   []Author
	Order     MemoryOrder
	Limit     int // 0 = unlimited
}

func (q MemoryQuery) build(companionID string) (string, []any) {
	query := `SELECT ` + memorySelectCols + ` FROM memories WHERE companion_id = ?`
	args := []any{companionID}

	if q.MinWeight > 0 {
		query += ` AND emotional_weight > ?`
		args = append(args, q.MinWeight)
	}
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += ` AND type IN (` + strings.Join(placeholders, ",") + `)`
	}
	if len(q.Authors) > 0 {
		placeholders := make([]string, len(q.Authors))
		for i, a := range q.Authors {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		query += ` AND author IN (` + strings.Join(placeholders, ",") + `)`
	}

	query += ` ORDER BY ` + q.Order.clause()
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	return query, args
}

// QueryMemories returns a companion's memories matching q. Read-only: it
// does not reinforce.
func (s *Store) QueryMemories(ctx context.Context, companionID string, q MemoryQuery) ([]Memory, error) {
	query, args := q.build(companionID)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kindred: query memories: %w", err)
	}
	defer rows.Close()

	var results []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// MemoryUpdate holds the mutable fields of a memory. Nil fields are left alone.
type MemoryUpdate struct {
	EmotionalWeight    *float64
	ReinforcementCount *int
	LastAccessedAt     *time.Time
}

// UpdateMemory applies the non-nil fields of u to memory id.
func (s *Store) UpdateMemory(ctx context.Context, id int64, u MemoryUpdate) error {
	var sets []string
	var args []any
	if u.EmotionalWeight != nil {
		sets = append(sets, "emotional_weight = ?")
		args = append(args, math.Max(0, math.Min(1, *u.EmotionalWeight)))
	}
	if u.ReinforcementCount != nil {
		sets = append(sets, "reinforcement_count = ?")
		args = append(args, *u.ReinforcementCount)
	}
	if u.LastAccessedAt != nil {
		sets = append(sets, "last_accessed_at = ?")
		args = append(args, formatTime(*u.LastAccessedAt))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE memories SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("kindred: update memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("kindred: memory %d: %w", id, ErrMemoryNotFound)
	}
	return nil
}

// DeleteMemory removes a memory. Operator action; the decay sweep is the
// only other deletion path.
func (s *Store) DeleteMemory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("kindred: delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("kindred: memory %d: %w", id, ErrMemoryNotFound)
	}
	return nil
}

// --- Interaction commit ---

// CommitInteraction writes the companion's new metrics and, when mem is
// non-nil, the memory the interaction produced, in one transaction. On
// success mem.ID is set.
func (s *Store) CommitInteraction(ctx context.Context, c Companion, mem *Memory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kindred: begin: %w", err)
	}
	defer tx.Rollback()

	if err := updateCompanion(ctx, tx, c); err != nil {
		return err
	}
	var id int64
	if mem != nil {
		if id, err = insertMemory(ctx, tx, *mem); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kindred: commit interaction: %w", err)
	}
	if mem != nil {
		mem.ID = id
	}
	return nil
}

// --- Reinforcement ---

// RetrieveAndReinforce returns up to limit memories above minWeight, most
// recently accessed first, and in the same transaction stamps each with
// last_accessed_at = now and bumps its reinforcement count. The returned
// records reflect the update.
func (s *Store) RetrieveAndReinforce(ctx context.Context, companionID string, minWeight float64, limit int, now time.Time) ([]Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("kindred: begin: %w", err)
	}
	defer tx.Rollback()

	query, args := MemoryQuery{MinWeight: minWeight, Order: OrderRecentlyAccessed, Limit: limit}.build(companionID)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("kindred: retrieve memories: %w", err)
	}
	var results []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		results = append(results, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stamp := formatTime(now)
	for i := range results {
		if _, err := tx.ExecContext(ctx, `
			UPDATE memories
			SET last_accessed_at = ?, reinforcement_count = reinforcement_count + 1
			WHERE id = ?`,
			stamp, results[i].ID,
		); err != nil {
			return nil, fmt.Errorf("kindred: reinforce memory %d: %w", results[i].ID, err)
		}
		results[i].LastAccessedAt = parseTime(stamp)
		results[i].ReinforcementCount++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("kindred: commit retrieve: %w", err)
	}
	return results, nil
}

// --- Decay sweep ---

// RunDecaySweep applies linear decay to every memory of a companion and
// deletes those at or below minWeight. Elapsed time is measured from the
// later of the last access and the last sweep, so repeated sweeps never
// double-count and access resets the clock. Permanent memories are skipped.
func (s *Store) RunDecaySweep(ctx context.Context, companionID string, minWeight float64, now time.Time) (SweepResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SweepResult{}, fmt.Errorf("kindred: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, emotional_weight, decay_rate, last_accessed_at, decayed_at
		FROM memories
		WHERE companion_id = ? AND decay_rate > 0`,
		companionID,
	)
	if err != nil {
		return SweepResult{}, fmt.Errorf("kindred: load memories for decay: %w", err)
	}

	type decayUpdate struct {
		id     int64
		weight float64
	}
	var updates []decayUpdate
	var toDelete []int64

	for rows.Next() {
		var id int64
		var weight, rate float64
		var accessed, decayed string
		if err := rows.Scan(&id, &weight, &rate, &accessed, &decayed); err != nil {
			rows.Close()
			return SweepResult{}, err
		}

		since := parseTime(accessed)
		if d := parseTime(decayed); d.After(since) {
			since = d
		}
		newWeight := DecayedWeight(weight, rate, now.Sub(since))

		switch {
		case newWeight <= minWeight:
			toDelete = append(toDelete, id)
		case newWeight != weight:
			updates = append(updates, decayUpdate{id, newWeight})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SweepResult{}, err
	}

	stamp := formatTime(now)
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET emotional_weight = ?, decayed_at = ? WHERE id = ?`,
			u.weight, stamp, u.id); err != nil {
			return SweepResult{}, fmt.Errorf("kindred: decay memory %d: %w", u.id, err)
		}
	}
	for _, id := range toDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return SweepResult{}, fmt.Errorf("kindred: prune memory %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SweepResult{}, fmt.Errorf("kindred: commit sweep: %w", err)
	}
	return SweepResult{Updated: len(updates), Deleted: len(toDelete)}, nil
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
