package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/erp/docflow/internal/domain/approval"
	"github.com/erp/docflow/internal/domain/numbering"
	"github.com/erp/docflow/internal/domain/shared"
	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/config"
	"github.com/erp/docflow/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a migrated in-memory SQLite database on a single connection
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.WorkflowModels()...))
	return db
}

func TestGormCounterStore_Increment(t *testing.T) {
	ctx := context.Background()
	store := NewGormCounterStore(newTestDB(t))
	year := 2025
	key, err := numbering.NewKey("sales_order", "acme", &year)
	require.NoError(t, err)

	_, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	for want := int64(1); want <= 3; want++ {
		got, err := store.Increment(ctx, key, "SALES_ORDER-acme-2025-", 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	series, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(3), series.Counter)
	assert.Equal(t, "SALES_ORDER-acme-2025-00003", series.Current())
	require.NotNil(t, series.Key.Year)
	assert.Equal(t, 2025, *series.Key.Year)
}

func TestGormCounterStore_SeparateKeys(t *testing.T) {
	ctx := context.Background()
	store := NewGormCounterStore(newTestDB(t))
	y1, y2 := 2024, 2025
	k1, _ := numbering.NewKey("invoice", "", &y1)
	k2, _ := numbering.NewKey("invoice", "", &y2)
	k3, _ := numbering.NewKey("invoice", "", nil)

	for _, k := range []numbering.Key{k1, k2, k3} {
		n, err := store.Increment(ctx, k, "INVOICE-", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, k.String())
	}
}

func TestGormCounterStore_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	store := NewGormCounterStore(newTestDB(t))
	key, _ := numbering.NewKey("sales_order", "acme", nil)

	const n = 50
	var wg sync.WaitGroup
	results := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.Increment(ctx, key, "SALES_ORDER-", 5)
			assert.NoError(t, err)
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for v := range results {
		assert.False(t, seen[v], "duplicate counter %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}

func TestGormCounterStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewGormCounterStore(newTestDB(t))
	key, _ := numbering.NewKey("purchase", "", nil)

	assert.ErrorIs(t, store.Reset(ctx, key, 10), shared.ErrNotFound)

	_, err := store.Increment(ctx, key, "PURCHASE-", 5)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, key, 41))

	next, err := store.Increment(ctx, key, "PURCHASE-", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(42), next)
}

func TestGormStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewGormStateStore(newTestDB(t))
	ref := workflow.DocumentRef{Domain: "sales", Number: "SO-001"}

	_, found, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.CompareAndSet(ctx, ref, workflow.StateDraft, workflow.StatePending))
	require.NoError(t, store.CompareAndSet(ctx, ref, workflow.StatePending, workflow.StateApproved))

	state, found, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, workflow.StateApproved, state)

	t.Run("stale from state conflicts", func(t *testing.T) {
		err := store.CompareAndSet(ctx, ref, workflow.StatePending, workflow.StateRejected)
		assert.ErrorIs(t, err, workflow.ErrStateConflict)

		err = store.CompareAndSet(ctx, ref, workflow.StateDraft, workflow.StatePending)
		assert.ErrorIs(t, err, workflow.ErrStateConflict)

		state, _, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, workflow.StateApproved, state)
	})

	t.Run("stored draft row moves like an absent one", func(t *testing.T) {
		other := workflow.DocumentRef{Domain: "sales", Number: "SO-002"}
		require.NoError(t, store.CompareAndSet(ctx, other, workflow.StateDraft, workflow.StatePending))
		require.NoError(t, store.CompareAndSet(ctx, other, workflow.StatePending, workflow.StateDraft))
		require.NoError(t, store.CompareAndSet(ctx, other, workflow.StateDraft, workflow.StatePending))
	})
}

func TestGormAuditLog(t *testing.T) {
	ctx := context.Background()
	log := NewGormAuditLog(newTestDB(t))
	ref := workflow.DocumentRef{Domain: "sales", Number: "SO-001"}
	other := workflow.DocumentRef{Domain: "invoice", Number: "INV-1"}

	t0 := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	submit := workflow.NewTransition(ref, workflow.StateDraft, workflow.StatePending, workflow.ActionSubmit, "alice", "")
	submit.OccurredAt = t0
	approve := workflow.NewTransition(ref, workflow.StatePending, workflow.StateApproved, workflow.ActionApprove, "bob", "")
	approve.OccurredAt = t0.Add(time.Minute)
	inv := workflow.NewTransition(other, workflow.StateDraft, workflow.StatePending, workflow.ActionSubmit, "carol", "")
	inv.OccurredAt = t0.Add(2 * time.Minute)

	for _, tr := range []*workflow.Transition{submit, approve, inv} {
		require.NoError(t, log.Append(ctx, tr))
	}

	t.Run("append is idempotent per target state", func(t *testing.T) {
		dup := workflow.NewTransition(ref, workflow.StateDraft, workflow.StatePending, workflow.ActionSubmit, "alice", "retry")
		require.NoError(t, log.Append(ctx, dup))

		history, err := log.History(ctx, ref)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, workflow.ActionSubmit, history[0].Action)
		assert.Equal(t, workflow.ActionApprove, history[1].Action)
		assert.Equal(t, submit.ID, history[0].ID)
	})

	t.Run("since is inclusive and filters by domain", func(t *testing.T) {
		all, err := log.Since(ctx, "", t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Len(t, all, 2)

		sales, err := log.Since(ctx, "sales", t0)
		require.NoError(t, err)
		assert.Len(t, sales, 2)

		none, err := log.Since(ctx, "sales", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestGormDocumentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormDocumentRepository(newTestDB(t))
	ref := workflow.DocumentRef{Domain: "sales", Number: "SO-002"}

	_, found, err := repo.Get(ctx, ref)
	require.NoError(t, err)
	assert.False(t, found)

	payload := workflow.Payload{
		"total": "150.00",
		"lines": []any{map[string]any{"price": 40, "cost": 50}},
	}
	require.NoError(t, repo.Save(ctx, ref, payload))
	require.NoError(t, repo.Save(ctx, ref, workflow.Payload{"total": "200"}))

	got, found, err := repo.Get(ctx, ref)
	require.NoError(t, err)
	require.True(t, found)
	total, ok := got.Decimal("total")
	require.True(t, ok)
	assert.True(t, total.Equal(decimal.NewFromInt(200)))
}

func TestGormRuleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRuleRepository(newTestDB(t))

	low, err := approval.NewRule(approval.RuleInput{
		Name:              "small invoices",
		Domain:            "invoice",
		RequiredApprovals: 1,
		Priority:          1,
		Active:            true,
	})
	require.NoError(t, err)
	high, err := approval.NewRule(approval.RuleInput{
		Name:              "large invoices",
		Domain:            "invoice",
		Conditions:        []approval.Condition{{Field: "amount", Operator: approval.OperatorGT, Value: 10000}},
		RequiredApprovals: 3,
		ApprovalRoles:     []string{"finance_manager"},
		Priority:          10,
		Active:            true,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, low))
	require.NoError(t, repo.Create(ctx, high))

	rules, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "large invoices", rules[0].Name)
	require.Len(t, rules[0].Conditions, 1)
	assert.Equal(t, approval.OperatorGT, rules[0].Conditions[0].Operator)
	assert.Equal(t, []string{"finance_manager"}, rules[0].ApprovalRoles)

	low.Deactivate()
	require.NoError(t, repo.Update(ctx, low))
	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := repo.FindByID(ctx, high.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.RequiredApprovals)

	missing := *low
	missing.ID = [16]byte{1}
	assert.ErrorIs(t, repo.Update(ctx, &missing), approval.ErrRuleNotFound)
	_, err = repo.FindByID(ctx, missing.ID)
	assert.ErrorIs(t, err, approval.ErrRuleNotFound)
}

func TestGormRequestRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRequestRepository(newTestDB(t))
	rule := approval.DefaultRule()
	rule.RequiredApprovals = 2

	_, err := repo.FindLatest(ctx, "invoice", "INV-9")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	req, err := approval.NewRequest("invoice", "INV-9", "alice", rule)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, req))

	vote, err := req.Cast("bob", nil, approval.VoteApprove, "ok")
	require.NoError(t, err)
	require.NoError(t, repo.SaveVote(ctx, req, vote))
	assert.Equal(t, 2, req.Version)

	loaded, err := repo.FindLatest(ctx, "invoice", "INV-9")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPartiallyApproved, loaded.Status)
	assert.Equal(t, 2, loaded.RequiredApprovals)
	require.Len(t, loaded.Votes, 1)
	assert.Equal(t, "bob", loaded.Votes[0].ApproverID)
	assert.Equal(t, rule.Name, loaded.RuleSnapshot.Name)

	t.Run("duplicate approver is rejected", func(t *testing.T) {
		again := &approval.Vote{ID: [16]byte{9}, RequestID: req.ID, ApproverID: "bob", Action: approval.VoteApprove, CastAt: time.Now().UTC()}
		assert.ErrorIs(t, repo.SaveVote(ctx, loaded, again), approval.ErrDuplicateVote)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, req.ID)
		require.NoError(t, err)
		stale.Version = 1
		v, err := stale.Cast("carol", nil, approval.VoteApprove, "")
		require.NoError(t, err)
		assert.ErrorIs(t, repo.SaveVote(ctx, stale, v), shared.ErrConcurrencyConflict)
	})

	t.Run("latest request wins", func(t *testing.T) {
		time.Sleep(5 * time.Millisecond)
		newer, err := approval.NewRequest("invoice", "INV-9", "alice", rule)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, newer))

		latest, err := repo.FindLatest(ctx, "invoice", "INV-9")
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)
		assert.Empty(t, latest.Votes)
	})
}

func sqliteConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Driver:          "sqlite",
		SQLitePath:      ":memory:",
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 5,
	}
}

func TestDatabase_SQLite(t *testing.T) {
	db, err := NewDatabase(sqliteConfig(), nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate())
	require.NoError(t, db.Ping())
	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)

	err = db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&models.WorkflowStateModel{Domain: "sales", DocumentNumber: "SO-1", State: "draft", UpdatedAt: time.Now()}).Error
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.WorkflowStateModel{Domain: "sales", DocumentNumber: "SO-2", State: "draft", UpdatedAt: time.Now()}).Error; err != nil {
			return err
		}
		return fmt.Errorf("rollback")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.DB.Model(&models.WorkflowStateModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
