package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stokcerdas/replenish/pkg/types"
)

func testRule(id, productID string) *types.ReorderRule {
	return &types.ReorderRule{
		ID:           id,
		TenantID:     "tenant-1",
		ProductID:    productID,
		LocationID:   "loc-1",
		Status:       types.RuleStatusActive,
		IsActive:     true,
		ServiceLevel: 0.95,
		UnitCost:     decimal.NewFromInt(1000),
	}
}

func TestRuleRepositoryUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRuleRepository()

	require.NoError(t, repo.Save(ctx, testRule("r1", "p1")))

	// same (tenant, product, location) under a different id is rejected
	err := repo.Save(ctx, testRule("r2", "p1"))
	assert.Error(t, err)

	// updating the same rule id is fine
	updated := testRule("r1", "p1")
	updated.ReorderPoint = 99
	require.NoError(t, repo.Save(ctx, updated))

	got, err := repo.Get(ctx, "tenant-1", "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.ReorderPoint)
}

func TestRuleRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRuleRepository()
	require.NoError(t, repo.Save(ctx, testRule("r1", "p1")))

	got, err := repo.Get(ctx, "tenant-1", "r1")
	require.NoError(t, err)
	got.ReorderPoint = 12345

	again, err := repo.Get(ctx, "tenant-1", "r1")
	require.NoError(t, err)
	assert.Zero(t, again.ReorderPoint, "mutating a returned rule must not affect the store")
}

func TestFindByProductLocation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRuleRepository()
	require.NoError(t, repo.Save(ctx, testRule("r1", "p1")))

	got, err := repo.FindByProductLocation(ctx, "tenant-1", "p1", "loc-1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	_, err = repo.FindByProductLocation(ctx, "tenant-1", "p2", "loc-1")
	assert.Error(t, err)
}

func TestListScheduledDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := NewMemoryRuleRepository()

	due := testRule("r1", "p1")
	due.Trigger = types.TriggerScheduled
	past := now.Add(-time.Hour)
	due.NextReviewDate = &past
	require.NoError(t, repo.Save(ctx, due))

	notDue := testRule("r2", "p2")
	notDue.Trigger = types.TriggerScheduled
	future := now.Add(time.Hour)
	notDue.NextReviewDate = &future
	require.NoError(t, repo.Save(ctx, notDue))

	stockRule := testRule("r3", "p3")
	stockRule.Trigger = types.TriggerStockLevel
	require.NoError(t, repo.Save(ctx, stockRule))

	got, err := repo.ListScheduledDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

func TestExecutionImmutabilityOnceSuccessful(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryExecutionRepository()

	exec := &types.ReorderExecution{
		ID:            "exec_1",
		TenantID:      "tenant-1",
		ReorderRuleID: "r1",
		ExecutedAt:    time.Now(),
		Status:        types.ExecutionStatusPending,
	}
	require.NoError(t, repo.Create(ctx, exec))

	exec.Complete()
	require.NoError(t, repo.Update(ctx, exec))

	// a finalized row rejects further writes
	exec.ActualQuantity = 999
	err := repo.Update(ctx, exec)
	assert.Error(t, err)

	got, err := repo.Get(ctx, "tenant-1", "exec_1")
	require.NoError(t, err)
	assert.Zero(t, got.ActualQuantity)
}

func TestExecutionRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryExecutionRepository()

	old := &types.ReorderExecution{ID: "exec_old", TenantID: "t", ReorderRuleID: "r",
		ExecutedAt: now.AddDate(0, 0, -120)}
	fresh := &types.ReorderExecution{ID: "exec_new", TenantID: "t", ReorderRuleID: "r",
		ExecutedAt: now.AddDate(0, 0, -5)}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	removed, err := repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "t", "exec_old")
	assert.Error(t, err)
	_, err = repo.Get(ctx, "t", "exec_new")
	assert.NoError(t, err)
}

func TestLatestUnfinished(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryExecutionRepository()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	done := &types.ReorderExecution{ID: "exec_1", TenantID: "t", ReorderRuleID: "r",
		ExecutedAt: base, Status: types.ExecutionStatusCompleted, Success: true}
	pending := &types.ReorderExecution{ID: "exec_2", TenantID: "t", ReorderRuleID: "r",
		ExecutedAt: base.Add(time.Hour), Status: types.ExecutionStatusPending}
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Create(ctx, pending))

	got, err := repo.LatestUnfinished(ctx, "t", "r")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "exec_2", got.ID)
}

func TestScheduleRepositoryListDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := NewMemoryScheduleRepository()

	past := now.Add(-time.Minute)
	require.NoError(t, repo.Save(ctx, &types.AutomationSchedule{
		ID: "s1", Status: types.ScheduleStatusActive, IsActive: true, NextExecutionAt: &past,
	}))
	require.NoError(t, repo.Save(ctx, &types.AutomationSchedule{
		ID: "s2", Status: types.ScheduleStatusError, IsActive: true, NextExecutionAt: &past,
	}))

	due, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "s1", due[0].ID)
}

func TestAuditLogAppendAndCleanup(t *testing.T) {
	dir := t.TempDir()
	audit, err := NewAuditLog(dir)
	require.NoError(t, err)
	defer audit.Close()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, audit.Append(&types.ReorderExecution{
		ID: "exec_1", TenantID: "t", ExecutedAt: now.AddDate(0, 0, -100),
	}))
	require.NoError(t, audit.Append(&types.ReorderExecution{
		ID: "exec_2", TenantID: "t", ExecutedAt: now,
	}))

	removed, err := audit.Cleanup(90, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestWebhookTable(t *testing.T) {
	table := NewWebhookTable()

	cb := &WebhookCallback{WebhookID: "whk_1", WorkflowID: "wf_1", TenantID: "t"}
	require.NoError(t, table.Insert(cb))
	assert.Error(t, table.Insert(cb), "duplicate id rejected")

	got, ok := table.Lookup("whk_1")
	require.True(t, ok)
	assert.Equal(t, "wf_1", got.WorkflowID)

	table.Delete("whk_1")
	_, ok = table.Lookup("whk_1")
	assert.False(t, ok)
}
