// Package registry implements the Sandbox Registry (spec.md §4.I): a
// process-global map from sandbox ID to Sandbox, plus a companion
// "closed" map that `reconnect` consults first. Backed by sqlDB
// bookkeeping of id -> container_id across many short-lived Sandboxes,
// using hand-written database/sql statements. Migrations run through
// golang-migrate rather than an embedded-schema-string approach.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/jiandong01/firebox"
	"github.com/jiandong01/firebox/ferrors"
	"github.com/jiandong01/firebox/idgen"
	"github.com/jiandong01/firebox/runtime"
	"github.com/jiandong01/firebox/telemetry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is what List returns for one sandbox: spec.md §4.I
// "{sandbox_id, status, metadata}".
type Entry struct {
	SandboxID string
	Status    string // "running" or "closed"
	Metadata  map[string]string
}

// Registry owns every live and closed Sandbox for one firebox process.
// Insert happens on Open, move-to-closed on Close, delete on Release;
// Reconnect consults the closed map first, per spec.md §4.I. The mutex
// covers insert/move/delete, per spec.md §5 "Shared-resource policy".
type Registry struct {
	rt              *runtime.Client
	builder         firebox.ImageBuilder
	containerPrefix string
	storageRoot     string
	db              *sql.DB

	mu     sync.Mutex
	live   map[string]*firebox.Sandbox
	closed map[string]*firebox.Sandbox
}

// Open creates a new Registry backed by a SQLite database at dbPath,
// running embedded migrations to bring the schema up to date.
func Open(dbPath string, rt *runtime.Client, builder firebox.ImageBuilder, containerPrefix, storageRoot string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindOS, "registry.Open", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, ferrors.Wrap(ferrors.KindOS, "registry.Open", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &Registry{
		rt:              rt,
		builder:         builder,
		containerPrefix: containerPrefix,
		storageRoot:     storageRoot,
		db:              db,
		live:            make(map[string]*firebox.Sandbox),
		closed:          make(map[string]*firebox.Sandbox),
	}
	if err := r.loadClosedFromDB(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return ferrors.Wrap(ferrors.KindOS, "registry.runMigrations", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return ferrors.Wrap(ferrors.KindOS, "registry.runMigrations", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return ferrors.Wrap(ferrors.KindOS, "registry.runMigrations", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return ferrors.Wrap(ferrors.KindOS, "registry.runMigrations", err)
	}
	return nil
}

// loadClosedFromDB re-hydrates closed-status rows left over from a prior
// process lifetime, so Reconnect can find them after a restart. This is
// the registry's crash-convenience persistence (SPEC_FULL.md Non-goals:
// not crash-durability of in-flight process/terminal/watcher state).
func (r *Registry) loadClosedFromDB() error {
	rows, err := r.db.Query(`SELECT id, container_id, network_id, image, persistent_storage_path, cwd, metadata FROM sandboxes WHERE status = 'closed'`)
	if err != nil {
		return ferrors.Wrap(ferrors.KindOS, "registry.loadClosedFromDB", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, containerID, networkID, image, storagePath, cwd, metaJSON string
		if err := rows.Scan(&id, &containerID, &networkID, &image, &storagePath, &cwd, &metaJSON); err != nil {
			return ferrors.Wrap(ferrors.KindOS, "registry.loadClosedFromDB", err)
		}
		var meta map[string]string
		_ = json.Unmarshal([]byte(metaJSON), &meta)

		sb := firebox.Adopt(r.rt, r.builder, id, containerID, networkID, storagePath, r.containerPrefix, firebox.Template{
			Image:    image,
			CWD:      cwd,
			Metadata: meta,
		}, firebox.StateClosed)
		r.closed[id] = sb
	}
	return rows.Err()
}

// Open materializes a brand-new Sandbox for tmpl, inserts it into the live
// map, and persists a "running" row. id defaults to a fresh UUID when
// empty.
func (r *Registry) Open(ctx context.Context, id string, tmpl firebox.Template, timeout time.Duration) (sb *firebox.Sandbox, err error) {
	if id == "" {
		id = idgen.NewSandboxID()
	}
	ctx, span := telemetry.StartSpan(ctx, "Registry.Open", id)
	defer func() { telemetry.EndSpan(span, err) }()

	r.mu.Lock()
	if _, exists := r.live[id]; exists {
		r.mu.Unlock()
		return nil, ferrors.New(ferrors.KindInvalidState, "Registry.Open", "sandbox already open: "+id, nil)
	}
	r.mu.Unlock()

	storagePath := tmpl.Metadata["persistent_storage_path"]
	if storagePath == "" {
		storagePath = r.storageRoot + "/" + id
	}

	sb = firebox.New(r.rt, r.builder, id, storagePath, r.containerPrefix, tmpl)
	if err = sb.Open(ctx, timeout); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.live[id] = sb
	r.mu.Unlock()

	if err := r.persist(ctx, sb, "running"); err != nil {
		slog.ErrorContext(ctx, "Registry.Open persist", "id", id, "error", err)
	}
	return sb, nil
}

// Close stops sb's container, moves it from the live map to the closed
// map, and updates its persisted status.
func (r *Registry) Close(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "Registry.Close", id)
	defer func() { telemetry.EndSpan(span, err) }()

	r.mu.Lock()
	sb, ok := r.live[id]
	r.mu.Unlock()
	if !ok {
		err = ferrors.New(ferrors.KindNotFound, "Registry.Close", "sandbox not open: "+id, nil)
		return err
	}

	if err = sb.Close(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.live, id)
	r.closed[id] = sb
	r.mu.Unlock()

	if err := r.persist(ctx, sb, "closed"); err != nil {
		slog.ErrorContext(ctx, "Registry.Close persist", "id", id, "error", err)
	}
	return nil
}

// Release removes sb's container permanently and deletes it from both
// maps and the database. Looks in live first, then closed.
func (r *Registry) Release(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "Registry.Release", id)
	defer func() { telemetry.EndSpan(span, err) }()

	r.mu.Lock()
	sb, ok := r.live[id]
	if !ok {
		sb, ok = r.closed[id]
	}
	r.mu.Unlock()
	if !ok {
		err = ferrors.New(ferrors.KindNotFound, "Registry.Release", "sandbox not found: "+id, nil)
		return err
	}

	if err = sb.Release(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.live, id)
	delete(r.closed, id)
	r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM sandboxes WHERE id = ?`, id); err != nil {
		slog.ErrorContext(ctx, "Registry.Release delete", "id", id, "error", err)
	}
	return nil
}

// Reconnect finds id in the closed map first; if absent, it tries
// adopting the container directly from the runtime (still present under
// the firebox container-name prefix but unknown to this process, e.g.
// after a restart that predates loadClosedFromDB, or a registry that
// never recorded it), per spec.md §4.I "close moves the entry into a
// companion closed map, which reconnect consults first."
func (r *Registry) Reconnect(ctx context.Context, id string, timeout time.Duration) (sb *firebox.Sandbox, err error) {
	ctx, span := telemetry.StartSpan(ctx, "Registry.Reconnect", id)
	defer func() { telemetry.EndSpan(span, err) }()

	r.mu.Lock()
	sb, ok := r.closed[id]
	r.mu.Unlock()

	if !ok {
		adopted, adoptErr := r.adoptFromRuntime(ctx, id)
		if adoptErr != nil {
			err = adoptErr
			return nil, err
		}
		sb = adopted
	}

	if err = sb.Reconnect(ctx, timeout); err != nil {
		return nil, err
	}

	r.mu.Lock()
	delete(r.closed, id)
	r.live[id] = sb
	r.mu.Unlock()

	if err := r.persist(ctx, sb, "running"); err != nil {
		slog.ErrorContext(ctx, "Registry.Reconnect persist", "id", id, "error", err)
	}
	return sb, nil
}

func (r *Registry) adoptFromRuntime(ctx context.Context, id string) (*firebox.Sandbox, error) {
	name := idgen.ContainerName(r.containerPrefix, id)
	containers, err := r.rt.Containers.List(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, c := range containers {
		if c.Name != name {
			continue
		}
		return firebox.Adopt(r.rt, r.builder, id, c.ID, "", r.storageRoot+"/"+id, r.containerPrefix, firebox.Template{
			Image: c.Image,
			CWD:   "/sandbox",
		}, firebox.StateClosed), nil
	}
	return nil, ferrors.New(ferrors.KindNotFound, "Registry.adoptFromRuntime", "no container found for "+id, nil)
}

// List enumerates every entry, including closed ones when includeClosed is
// true, per spec.md §4.I list(include_closed).
func (r *Registry) List(ctx context.Context, includeClosed bool) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.live)+len(r.closed))
	for id, sb := range r.live {
		out = append(out, Entry{SandboxID: id, Status: "running", Metadata: sandboxMetadata(sb)})
	}
	if includeClosed {
		for id, sb := range r.closed {
			out = append(out, Entry{SandboxID: id, Status: "closed", Metadata: sandboxMetadata(sb)})
		}
	}
	return out, nil
}

func sandboxMetadata(sb *firebox.Sandbox) map[string]string {
	return map[string]string{
		"cwd":          sb.CWD(),
		"container_id": sb.ContainerID(),
	}
}

// Get returns the live sandbox for id, or nil if it isn't open.
func (r *Registry) Get(id string) *firebox.Sandbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[id]
}

func (r *Registry) persist(ctx context.Context, sb *firebox.Sandbox, status string) error {
	metaJSON, err := json.Marshal(sandboxMetadata(sb))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sandboxes (id, container_id, network_id, status, image, persistent_storage_path, cwd, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			container_id = excluded.container_id,
			network_id = excluded.network_id,
			status = excluded.status,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, sb.ID, sb.ContainerID(), "", status, "", sb.PersistentStoragePath, sb.CWD(), string(metaJSON))
	return err
}

// CloseDB releases the underlying database handle. Does not touch any live
// or closed Sandbox.
func (r *Registry) CloseDB() error {
	return r.db.Close()
}
