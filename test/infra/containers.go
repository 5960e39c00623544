package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16"

// PGContainer wraps the disposable database backing an integration run.
// It is empty when an external database was reused.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres returns a DSN for integration tests. A non-empty
// overrideDSN, or SHOPFLOW_TEST_PG_DSN in the environment, short-circuits
// container startup and reuses that database instead.
func StartPostgres(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("SHOPFLOW_TEST_PG_DSN"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("shopflow_test"),
		postgres.WithUsername("shopflow"),
		postgres.WithPassword("shopflow"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
