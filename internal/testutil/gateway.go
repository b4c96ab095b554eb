package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"eni-go/internal/database"
	"eni-go/internal/eni"
	"eni-go/internal/protocol"
	"eni-go/internal/vcs"
)

// Object types registered by NewTestGateway.
const (
	POUType = "{6654496C-404D-11D5-9F2B-00A0C9C2D5A7}"
	GVLType = "{6654496C-404D-11D5-9F2B-00A0C9C2D5AB}"
)

// TestGateway is a fully wired gateway over an in-memory repository and
// property store.
type TestGateway struct {
	Env        *eni.Env
	VCS        *vcs.GitVCS
	Store      *database.SQLiteDatabase
	Clock      *StubClock
	Logger     *RecordingLogger
	Dispatcher *eni.Dispatcher
	Gateway    *eni.Gateway
}

// GatewayOption customizes NewTestGateway.
type GatewayOption func(*gatewayConfig)

type gatewayConfig struct {
	root     string
	timeout  time.Duration
	users    []eni.User
	settings func(*eni.ServerSettings)
}

// WithRoot places the object namespace below root in the working copy.
func WithRoot(root string) GatewayOption {
	return func(c *gatewayConfig) { c.root = root }
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) GatewayOption {
	return func(c *gatewayConfig) { c.timeout = d }
}

// WithUsers declares users.
func WithUsers(users ...eni.User) GatewayOption {
	return func(c *gatewayConfig) { c.users = users }
}

// WithSettings adjusts the server settings.
func WithSettings(fn func(*eni.ServerSettings)) GatewayOption {
	return func(c *gatewayConfig) { c.settings = fn }
}

// NewTestGateway builds a gateway with the POU and GVL types registered.
func NewTestGateway(t *testing.T, opts ...GatewayOption) *TestGateway {
	t.Helper()

	cfg := gatewayConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	types := eni.NewTypeRegistry()
	if err := types.Register(POUType, "pou", "Program organisation unit"); err != nil {
		t.Fatalf("registering pou: %v", err)
	}
	if err := types.Register(GVLType, "gvl", "Global variable list"); err != nil {
		t.Fatalf("registering gvl: %v", err)
	}

	clock := FixedClock()
	logger := NewRecordingLogger()
	store := NewTestDatabase(t)

	repo, err := vcs.NewMemoryGitVCS(store, vcs.Options{Clock: clock, Logger: logger})
	if err != nil {
		t.Fatalf("creating repository: %v", err)
	}

	settings := eni.DefaultServerSettings()
	if cfg.settings != nil {
		cfg.settings(&settings)
	}

	env := &eni.Env{
		Types:    types,
		Paths:    eni.NewResolver(cfg.root, types),
		VCS:      repo,
		Users:    eni.NewUserTable(cfg.users),
		Sessions: eni.NewSessionRegistry(NewStubIDGenerator()),
		Settings: settings,
		Logger:   logger,
		Clock:    clock,
	}
	d := eni.NewDispatcher(env, cfg.timeout, nil)

	return &TestGateway{
		Env:        env,
		VCS:        repo,
		Store:      store,
		Clock:      clock,
		Logger:     logger,
		Dispatcher: d,
		Gateway:    eni.NewGateway(d, logger),
	}
}

// Exchange sends doc through the gateway on sess and decodes the response.
func (g *TestGateway) Exchange(t *testing.T, sess *eni.Session, doc string) *protocol.Element {
	t.Helper()

	var out bytes.Buffer
	if err := g.Gateway.Handle(context.Background(), sess, bytes.NewBufferString(doc), &out); err != nil {
		t.Fatalf("Handle() error = %v\nlog:\n%s", err, g.Logger)
	}
	resp, err := protocol.Decode(&out)
	if err != nil {
		t.Fatalf("decoding response: %v\n%s", err, out.String())
	}
	return resp
}
