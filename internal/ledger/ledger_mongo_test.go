//go:build integration

package ledger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/navid-fn/tradedesk/internal/storage"
)

// mongoURI is MONGO_TEST_URI when set, otherwise a container started by
// TestMain.
var mongoURI = os.Getenv("MONGO_TEST_URI")

func TestMain(m *testing.M) {
	ctx := context.Background()
	var container testcontainers.Container
	if mongoURI == "" {
		var err error
		container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(time.Minute),
			},
			Started: true,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "start mongo container:", err)
			os.Exit(1)
		}
		mongoURI, err = containerURI(ctx, container)
		if err != nil {
			_ = container.Terminate(ctx)
			fmt.Fprintln(os.Stderr, "resolve mongo container address:", err)
			os.Exit(1)
		}
	}

	code := m.Run()
	if container != nil {
		_ = container.Terminate(ctx)
	}
	os.Exit(code)
}

func containerURI(ctx context.Context, c testcontainers.Container) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := c.MappedPort(ctx, "27017")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port()), nil
}

// mongoFixture gives each test its own database on the shared server.
func mongoFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	client, err := storage.Connect(ctx, mongoURI)
	require.NoError(t, err)

	db := client.Database("ledger_" + strings.ReplaceAll(t.Name(), "/", "_"))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	l := logrus.New()
	l.SetOutput(io.Discard)
	reg, err := storage.NewRegistry(db, storage.DefaultSchemas(), l)
	require.NoError(t, err)
	require.NoError(t, reg.EnsureIndexes(ctx))
	return fixtureOn(t, reg)
}

func TestMongoRunningBalanceScenario(t *testing.T) {
	checkRunningBalanceScenario(t, mongoFixture(t))
}

func TestMongoAccountSummary(t *testing.T) {
	checkAccountSummary(t, mongoFixture(t))
}

func TestMongoTradeListPaging(t *testing.T) {
	checkTradeListPaging(t, mongoFixture(t))
}
