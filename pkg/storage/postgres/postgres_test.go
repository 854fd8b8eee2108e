package postgres

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/appcommon/pkg/dynconfig"
	"github.com/rhuss/appcommon/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container, creates the config table and
// returns a connected Store. Tests are skipped if no container runtime is
// available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		if _, err := exec.LookPath("docker"); err != nil {
			t.Skip("no container runtime found, skipping integration tests")
		}
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("appcommon_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:      connStr,
		MaxConns: 5,
		MinConns: 1,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	if err := store.Handle().CreateUpdate(Schema).ExecuteNoUpdate(ctx); err != nil {
		t.Fatalf("creating config table: %v", err)
	}

	return store
}

func TestPostgres_SetAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.SetConfigProperty(ctx, dynconfig.Property{Name: "ui.href", Value: "/ui/"}); err != nil {
		t.Fatalf("SetConfigProperty failed: %v", err)
	}

	got, err := store.GetConfigProperty(ctx, "ui.href")
	if err != nil {
		t.Fatalf("GetConfigProperty failed: %v", err)
	}
	if got == nil || got.Value != "/ui/" {
		t.Fatalf("GetConfigProperty = %+v, want /ui/", got)
	}
	if got.ModifiedOn.IsZero() {
		t.Error("ModifiedOn should be set")
	}

	// Upsert replaces the value.
	if err := store.SetConfigProperty(ctx, dynconfig.Property{Name: "ui.href", Value: "/app/"}); err != nil {
		t.Fatalf("second SetConfigProperty failed: %v", err)
	}
	got, _ = store.GetConfigProperty(ctx, "ui.href")
	if got == nil || got.Value != "/app/" {
		t.Errorf("value after upsert = %+v, want /app/", got)
	}
}

func TestPostgres_GetMissing(t *testing.T) {
	store := setupTestDB(t)

	got, err := store.GetConfigProperty(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestPostgres_DeleteAndList(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, n := range []string{"c", "a", "b"} {
		store.SetConfigProperty(ctx, dynconfig.Property{Name: n, Value: n})
	}
	if err := store.DeleteConfigProperty(ctx, "b"); err != nil {
		t.Fatalf("DeleteConfigProperty failed: %v", err)
	}
	if err := store.DeleteConfigProperty(ctx, "b"); err != nil {
		t.Fatalf("deleting absent property should succeed: %v", err)
	}

	list, err := store.GetConfigProperties(ctx)
	if err != nil {
		t.Fatalf("GetConfigProperties failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "c" {
		t.Errorf("list = %v, want [a c]", list)
	}
}

func TestPostgres_TenantIsolation(t *testing.T) {
	store := setupTestDB(t)
	ctxA := storage.SetTenant(context.Background(), "tenant-a")
	ctxB := storage.SetTenant(context.Background(), "tenant-b")

	store.SetConfigProperty(ctxA, dynconfig.Property{Name: "x", Value: "a"})

	if got, _ := store.GetConfigProperty(ctxA, "x"); got == nil {
		t.Fatal("tenant A should see own property")
	}
	if got, _ := store.GetConfigProperty(ctxB, "x"); got != nil {
		t.Error("tenant B should not see tenant A's property")
	}
}

func TestPostgres_StaleTenants(t *testing.T) {
	store := setupTestDB(t)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := t0
	store.now = func() time.Time { return clock }

	store.SetConfigProperty(storage.SetTenant(context.Background(), "a"), dynconfig.Property{Name: "x", Value: "1"})
	clock = t0.Add(time.Hour)
	store.SetConfigProperty(storage.SetTenant(context.Background(), "b"), dynconfig.Property{Name: "x", Value: "1"})

	tenants, err := store.GetTenantsWithStaleConfigProperties(context.Background(), t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 1 || tenants[0] != "b" {
		t.Errorf("stale tenants = %v, want [b]", tenants)
	}
}

func TestPostgres_MissingTableIsStorageError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.Handle().CreateUpdate("DROP TABLE config").ExecuteNoUpdate(ctx); err != nil {
		t.Fatalf("dropping table: %v", err)
	}

	_, err := store.GetConfigProperty(ctx, "x")
	if !errors.Is(err, storage.ErrStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
