//go:build integration

package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/config"
	"grantsbackend/internal/database"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"
	"grantsbackend/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// setupPostgres starts a throwaway postgres and returns a migrated pool.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "grants",
			"POSTGRES_PASSWORD": "grants",
			"POSTGRES_DB":       "grants",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pg.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.NewConnection(config.DBConfig{
		Host:            host,
		Port:            port.Port(),
		User:            "grants",
		Password:        "grants",
		Name:            "grants",
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newPostgresEnv(t *testing.T) *env {
	t.Helper()
	db := setupPostgres(t)
	logger := zaptest.NewLogger(t)

	tm := repository.NewTransactionManager(db, 10*time.Second)
	budgetRepo := repository.NewBudgetRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	ledger := repository.NewIdempotencyRepository(db)
	auditService := service.NewAuditService(repository.NewAuditRepository(db))
	pub := &recordingPublisher{}

	return &env{
		db:        db,
		budgets:   service.NewBudgetSSOTService(tm, budgetRepo, partnerRepo, templateRepo, ledger, auditService, logger, service.WithPublisher(pub)),
		contracts: service.NewContractSSOTService(tm, repository.NewContractRepository(db), budgetRepo, templateRepo, ledger, auditService, logger, service.WithPublisher(pub)),
		audit:     auditService,
		partners:  service.NewPartnerService(partnerRepo, tm),
		templates: service.NewTemplateService(templateRepo, tm),
		ledger:    ledger,
		pub:       pub,
		actor:     uuid.New(),
	}
}

func TestPostgresConcurrentTransitionsAreSerialised(t *testing.T) {
	e := newPostgresEnv(t)
	b := e.draftBudget(t, e.partner(t, true), line("x", 1, 1))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.budgets.TransitionStatus(context.Background(), service.TransitionBudgetInput{
				BudgetID: b.ID, NextStatus: model.BudgetStatusSubmitted, ActorID: e.actor,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.KindOf(err) == apperr.KindInvalidTransition:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)
	assert.Len(t, e.trail(t, model.EntityBudget, b.ID), 2)
}

func TestPostgresConcurrentIdempotentCalls(t *testing.T) {
	e := newPostgresEnv(t)
	b := e.draftBudget(t, e.partner(t, true), line("x", 1, 1))
	in := service.TransitionBudgetInput{
		BudgetID: b.ID, NextStatus: model.BudgetStatusSubmitted, IdempotencyKey: "submit-once", ActorID: e.actor,
	}

	const workers = 6
	results := make([]service.BudgetResponse, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.budgets.TransitionStatus(context.Background(), in)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Len(t, e.trail(t, model.EntityBudget, b.ID), 2)
}

func TestPostgresContractNumbersAreUnique(t *testing.T) {
	e := newPostgresEnv(t)
	budget := e.approvedBudget(t)
	tpl := e.contractTemplate(t)

	const workers = 10
	numbers := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := e.contracts.CreateContract(context.Background(), service.CreateContractInput{
				ProjectID:  budget.ProjectID,
				PartnerID:  budget.PartnerID,
				BudgetID:   budget.ID,
				TemplateID: tpl,
				Title:      "Parallel agreement",
				ActorID:    e.actor,
			})
			if assert.NoError(t, err) {
				numbers[i] = c.Number
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, n := range numbers {
		assert.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestPostgresActivationLocksBudgetAtomically(t *testing.T) {
	e := newPostgresEnv(t)
	c, budget := e.signedContract(t)

	_, err := e.contracts.Activate(context.Background(), e.act(c.ID))
	require.NoError(t, err)

	got, err := e.budgets.GetBudget(context.Background(), budget.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BudgetStatusLocked, got.Status)

	_, err = e.budgets.AddBudgetLines(context.Background(), service.AddBudgetLinesInput{
		BudgetID: budget.ID, Lines: []service.BudgetLineInput{line("late", 1, 1)}, ActorID: e.actor,
	})
	assert.Equal(t, apperr.KindLocked, apperr.KindOf(err))
}
