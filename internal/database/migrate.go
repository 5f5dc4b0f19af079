package database

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationSet is one owner's ordered schema history. Each set keeps its own
// version table so modules evolve their tables independently.
type MigrationSet struct {
	Name string
	FS   fs.FS
	Dir  string
}

// Table returns the name of the version table tracking this set.
func (s MigrationSet) Table() string {
	return "schema_migrations_" + s.Name
}

var (
	setsMu sync.Mutex
	sets   = map[string]MigrationSet{}
)

// RegisterMigrations publishes a migration set. Module packages call it from
// init so the schema exists before any module is initialized. Registering the
// same name twice panics.
func RegisterMigrations(name string, fsys fs.FS, dir string) {
	setsMu.Lock()
	defer setsMu.Unlock()
	if name == "" || fsys == nil {
		panic("database: RegisterMigrations needs a name and a filesystem")
	}
	if _, exists := sets[name]; exists {
		panic(fmt.Sprintf("database: migration set %q already registered", name))
	}
	sets[name] = MigrationSet{Name: name, FS: fsys, Dir: dir}
}

// RegisteredMigrations returns every registered set ordered by name.
func RegisteredMigrations() []MigrationSet {
	setsMu.Lock()
	defer setsMu.Unlock()
	out := make([]MigrationSet, 0, len(sets))
	for _, s := range sets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunMigrations applies all up migrations of set to the database at dbPath.
// It uses a dedicated connection because closing the migrate instance closes
// the driver's *sql.DB.
func RunMigrations(dbPath string, set MigrationSet) error {
	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: set.Table()})
	if err != nil {
		_ = db.Close()
		return err
	}
	src, err := iofs.New(set.FS, set.Dir)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migration source %s: %w", set.Name, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
