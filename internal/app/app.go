package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eni-go/internal/config"
	"eni-go/internal/database"
	"eni-go/internal/encryption"
	"eni-go/internal/eni"
	"eni-go/internal/transport"
	"eni-go/internal/vault"
	"eni-go/internal/vcs"
)

// ENIApp is the application layer between the CLI and the gateway.
// It constructs all dependencies from config, exposes the admin operations
// the CLI needs, and snapshots the property store on Close.
type ENIApp struct {
	cfg         *config.Config
	db          *database.SQLiteDatabase
	repo        *vcs.GitVCS
	types       *eni.TypeRegistry
	paths       *eni.Resolver
	sessions    *eni.SessionRegistry
	registry    *prometheus.Registry
	metrics     *transport.Metrics
	gateway     *eni.Gateway
	snapshotter *eni.Snapshotter
	logger      eni.Logger
	op          *Operation
	logFile     *os.File
}

// NewENIApp creates a fully wired ENIApp from the given config.
// The caller must call Close when done.
func NewENIApp(ctx context.Context, cfg *config.Config, op *Operation) (*ENIApp, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	types := eni.NewTypeRegistry()
	for _, t := range cfg.Types {
		if err := types.Register(t.GUID, t.Extension, t.Description); err != nil {
			return nil, fmt.Errorf("registering object types: %w", err)
		}
	}

	l, logFile, err := newLogger(cfg.LogDir, op.ID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	a := &ENIApp{
		cfg:      cfg,
		types:    types,
		paths:    eni.NewResolver(cfg.Repository.Root, types),
		sessions: eni.NewSessionRegistry(eni.UUIDGenerator{}),
		registry: prometheus.NewRegistry(),
		logger:   logger,
		op:       op,
		logFile:  logFile,
	}
	if err := a.open(ctx, timeout); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *ENIApp) open(ctx context.Context, timeout time.Duration) error {
	cfg := a.cfg

	dbPath := database.FilePath(cfg.Database, cfg.GatewayID)
	fresh := dbPath != "" && !fileExists(dbPath)

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.GatewayID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	if cfg.Snapshot.Enabled {
		v, enc, err := snapshotTarget(ctx, cfg)
		if err != nil {
			return err
		}
		if enc != nil && !enc.IsConfigured() {
			return fmt.Errorf("snapshot encryption keys missing: run keys init")
		}
		if err := v.ValidateSetup(); err != nil {
			return fmt.Errorf("snapshot vault %q: %w", cfg.Snapshot.Vault.Name, err)
		}
		a.snapshotter = eni.NewSnapshotter(db, v, enc, cfg.GatewayID, eni.RealClock{}, a.logger)
		a.logger.Debug("snapshots enabled", "vault", cfg.Snapshot.Vault.Type, "encrypted", a.snapshotter.Encrypted())
		if fresh {
			a.warnIfSnapshotted(v)
		}
	}

	repo, err := vcs.NewVCSFromConfig(ctx, cfg.Repository, db, a.logger)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	a.repo = repo

	if root := a.paths.Root(); root != "" {
		if err := repo.MakeFolder(ctx, root, eni.AnonymousUser, "create namespace root"); err != nil {
			return fmt.Errorf("creating namespace root %s: %w", root, err)
		}
	}

	env := &eni.Env{
		Types:    a.types,
		Paths:    a.paths,
		VCS:      repo,
		Users:    eni.NewUserTable(users(cfg.Users)),
		Sessions: a.sessions,
		Settings: serverSettings(cfg),
		Logger:   a.logger,
		Clock:    eni.RealClock{},
	}

	a.registry.MustRegister(collectors.NewGoCollector())
	a.metrics = transport.NewMetrics(a.registry, a.sessions)
	a.gateway = eni.NewGateway(eni.NewDispatcher(env, timeout, a.metrics), a.logger)
	return nil
}

// warnIfSnapshotted flags a property store that was just created while the
// vault already holds a snapshot of it. Locks and labels would be lost.
func (a *ENIApp) warnIfSnapshotted(v eni.Vault) {
	version, err := v.GetMetadataVersion(a.cfg.GatewayID, eni.SnapshotName)
	if err != nil {
		a.logger.Warn("checking snapshot version", "error", err)
		return
	}
	if version > 0 {
		a.logger.Warn("property store is new but the vault holds a snapshot: run restore-props to recover locks and labels", "version", version)
	}
}

// snapshotTarget builds the vault and encryptor of the snapshot config. The
// encryptor is nil for plaintext snapshots.
func snapshotTarget(ctx context.Context, cfg *config.Config) (eni.Vault, eni.Encryptor, error) {
	v, err := vault.NewVaultFromConfig(ctx, cfg.Snapshot.Vault)
	if err != nil {
		return nil, nil, fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Snapshot.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("creating encryptor: %w", err)
	}
	return v, enc, nil
}

func users(cfg []config.UserConfig) []eni.User {
	out := make([]eni.User, 0, len(cfg))
	for _, u := range cfg {
		out = append(out, eni.User{Name: u.Name, FullName: u.FullName, Description: u.Description})
	}
	return out
}

// serverSettings overlays the configured values on the defaults. Zero
// numbers keep the default; allow_anonymous is taken as written.
func serverSettings(cfg *config.Config) eni.ServerSettings {
	s := eni.DefaultServerSettings()
	c := cfg.Server
	if c.CommTimeout != 0 {
		s.CommTimeout = c.CommTimeout
	}
	if c.IdleInterval != 0 {
		s.IdleInterval = c.IdleInterval
	}
	if c.ClientExpiration != 0 {
		s.ClientExpiration = c.ClientExpiration
	}
	if c.MaxTrials != 0 {
		s.MaxTrials = c.MaxTrials
	}
	if c.ObjectAccess != 0 {
		s.ObjectAccess = c.ObjectAccess
	}
	if c.FolderAccess != 0 {
		s.FolderAccess = c.FolderAccess
	}
	s.AllowAnonymous = c.AllowAnonymous
	if cfg.Repository.Type != "" {
		s.ActiveDriver = cfg.Repository.Type
	}
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Logger returns the application logger.
func (a *ENIApp) Logger() eni.Logger {
	return a.logger
}

// Server returns the HTTP front of the gateway.
func (a *ENIApp) Server() *transport.Server {
	return transport.NewServer(a.gateway, a.sessions, a.logger, transport.Options{
		Metrics:  a.metrics,
		Gatherer: a.registry,
	})
}

// Serve listens on the configured address until ctx is cancelled.
func (a *ENIApp) Serve(ctx context.Context) error {
	a.logger.Info("gateway listening", "addr", a.cfg.Listen, "gateway_id", a.cfg.GatewayID, "root", a.paths.Root())
	if err := a.Server().ListenAndServe(ctx, a.cfg.Listen); err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

// Types returns the registered object types.
func (a *ENIApp) Types() []eni.ObjectType {
	return a.types.Types()
}

// TreeEntry is one object or folder of the namespace by logical path.
type TreeEntry struct {
	Path   string
	TypeID string
	Folder bool
}

// Tree lists everything below the logical folder, parents before children.
func (a *ENIApp) Tree(ctx context.Context, folder string) ([]TreeEntry, error) {
	physical := a.paths.PhysicalPath(folder, "")
	entries, err := a.repo.List(ctx, physical, true, false)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", folder, err)
	}

	out := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		logical, typeID, err := a.paths.LogicalEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, TreeEntry{Path: logical, TypeID: typeID, Folder: e.Kind == eni.EntryFolder})
	}
	return out, nil
}

// Locks returns every checked-out object.
func (a *ENIApp) Locks(ctx context.Context) ([]eni.LockedPath, error) {
	return a.repo.Locks(ctx)
}

// BreakLock removes the lock on a physical path regardless of its holder.
func (a *ENIApp) BreakLock(path string) error {
	p := eni.CleanPath(path)
	if p == "" {
		return fmt.Errorf("path required")
	}
	if err := a.repo.BreakLock(p); err != nil {
		a.op.Fail()
		return fmt.Errorf("breaking lock on %s: %w", p, err)
	}
	a.logger.Warn("lock broken", "path", p)
	return nil
}

// Snapshot uploads the property store now and returns the stored version.
func (a *ENIApp) Snapshot() (int64, error) {
	if a.snapshotter == nil {
		return 0, fmt.Errorf("snapshots are not enabled")
	}
	return a.snapshotter.Snapshot()
}

// Close snapshots the property store after mutating operations and closes
// all resources. It returns the first error encountered.
func (a *ENIApp) Close() error {
	var firstErr error

	if a.op.Mutating && a.snapshotter != nil {
		if _, err := a.snapshotter.Snapshot(); err != nil {
			a.logger.Error("snapshot on close", "error", err)
			firstErr = err
		}
	}

	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *ENIApp) closeResources() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
		a.db = nil
	}
	if a.logFile != nil {
		a.logger.Info("operation finished", "command", a.op.Command, "status", a.op.Status)
		a.logFile.Close()
		a.logFile = nil
	}
	return firstErr
}

// NeedsPassphrase reports whether snapshots are encrypted, so restoring
// requires the key passphrase.
func NeedsPassphrase(cfg *config.Config) bool {
	t := strings.TrimSpace(cfg.Snapshot.Encryption.Type)
	return t != "" && t != "none"
}

// InitKeys generates the snapshot key pair. Existing keys are never
// overwritten.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Snapshot.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return fmt.Errorf("snapshot encryption is disabled (type %q)", cfg.Snapshot.Encryption.Type)
	}
	if enc.IsConfigured() {
		return fmt.Errorf("snapshot keys already exist")
	}
	return enc.Setup(passphrase)
}

// RestoreProperties replaces the local property store with the newest
// snapshot in the vault. The gateway must not be running.
func RestoreProperties(ctx context.Context, cfg *config.Config, passphrase string) (int64, error) {
	dest := database.FilePath(cfg.Database, cfg.GatewayID)
	if dest == "" {
		return 0, fmt.Errorf("restore requires a sqlite database with data_dir")
	}

	v, enc, err := snapshotTarget(ctx, cfg)
	if err != nil {
		return 0, err
	}

	var dc eni.DecryptionContext
	if enc != nil {
		if dc, err = enc.Unlock(passphrase); err != nil {
			return 0, fmt.Errorf("unlocking snapshot key: %w", err)
		}
	}

	s := eni.NewSnapshotter(nil, v, enc, cfg.GatewayID, eni.RealClock{}, eni.NewNopLogger())
	version, err := s.Restore(dest, dc)
	if err != nil {
		return 0, err
	}

	db, err := database.NewSQLiteDatabase(dest)
	if err != nil {
		return 0, fmt.Errorf("opening restored property store: %w", err)
	}
	defer db.Close()
	if err := db.CheckMigrations(); err != nil {
		return 0, fmt.Errorf("restored property store is not usable: %w", err)
	}
	return version, nil
}
