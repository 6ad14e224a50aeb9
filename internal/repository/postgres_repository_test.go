package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresFixtures = `
INSERT INTO users (id, email) VALUES
    ('user-1', 'alice@example.com'), ('user-2', 'bob@example.com'), ('user-3', 'carol@example.com');
INSERT INTO products (id, name, price, discount_type, discount_value, in_stock) VALUES
    (1, 'Wireless Mouse', 100.00, 'percentage', 10, TRUE),
    (2, 'USB-C Cable', 25.00, 'none', 0, TRUE),
    (3, 'Mechanical Keyboard', 60.00, 'fixed', 10, TRUE),
    (4, 'Gift Wrapping Sample', NULL, 'none', 0, TRUE),
    (5, 'Monitor Stand', 50.00, 'none', 0, FALSE);
INSERT INTO coupons (id, code, discount_type, discount_value, is_active, valid_from, valid_to) VALUES
    ('c0a80001-0000-4000-8000-000000000001', 'SAVE20', 'percentage', 20, TRUE, NULL, NULL),
    ('c0a80001-0000-4000-8000-000000000003', 'EXPIRED10', 'percentage', 10, TRUE, NULL, '2020-01-01 00:00:00+00');
`

// one container per test run; every subtest truncates the cart tables
func TestPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations/postgres",
	}

	repo, err := NewPostgresRepository(creds)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	var version int
	require.NoError(t, repo.db.QueryRowContext(ctx,
		`SELECT version FROM cart_pricing_schema_migrations`).Scan(&version),
		"constructor should apply the migrations in MigrationsDirPath")
	require.Equal(t, 1, version)

	setup := func(t *testing.T) *Repository {
		_, err := repo.db.ExecContext(ctx,
			`TRUNCATE cart_outbox, cart_line_items, carts, coupons, products, users RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		_, err = repo.db.ExecContext(ctx, postgresFixtures)
		require.NoError(t, err)
		return repo
	}

	runRepositorySuite(t, setup)
}
