package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/domain"
)

func TestWorkflowRepository_Save_Insert(t *testing.T) {
	repo := setupTestDB(t).Workflows()

	wf := &domain.Workflow{
		Name:     "echo",
		Enabled:  true,
		Priority: 50,
		Config:   `{"nodes":[]}`,
	}

	err := repo.Save(wf)
	require.NoError(t, err, "Save should succeed for new workflow")
	require.Greater(t, wf.ID, int64(0), "Workflow should have ID assigned after insert")

	found, err := repo.FindByID(wf.ID)
	require.NoError(t, err)
	require.Equal(t, "echo", found.Name)
	require.Equal(t, 50, found.Priority)
	require.Equal(t, `{"nodes":[]}`, found.Config)
	require.WithinDuration(t, wf.CreatedAt, found.CreatedAt, time.Second)
}

func TestWorkflowRepository_Save_EmptyConfig(t *testing.T) {
	repo := setupTestDB(t).Workflows()

	wf := &domain.Workflow{Name: "draft", Enabled: false}
	require.NoError(t, repo.Save(wf))

	found, err := repo.FindByID(wf.ID)
	require.NoError(t, err)
	require.Equal(t, "{}", found.Config, "Empty config should be stored as an empty object")
}

func TestWorkflowRepository_Save_Update(t *testing.T) {
	repo := setupTestDB(t).Workflows()

	wf := &domain.Workflow{Name: "echo", Enabled: true, Priority: 100}
	require.NoError(t, repo.Save(wf))
	originalCreatedAt := wf.CreatedAt

	time.Sleep(10 * time.Millisecond)

	wf.Priority = 10
	wf.Enabled = false
	require.NoError(t, repo.Save(wf), "Save should succeed for update")

	found, err := repo.FindByID(wf.ID)
	require.NoError(t, err)
	require.Equal(t, 10, found.Priority, "Priority should be updated")
	require.False(t, found.Enabled, "Enabled should be updated")
	require.Equal(t, originalCreatedAt.Unix(), found.CreatedAt.Unix(), "CreatedAt should not change")
}

func TestWorkflowRepository_FindByID_NotFound(t *testing.T) {
	repo := setupTestDB(t).Workflows()

	_, err := repo.FindByID(777)
	require.Error(t, err)

	var notFound *domain.WorkflowNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be WorkflowNotFoundError")
	require.Equal(t, int64(777), notFound.ID)
}

func TestWorkflowRepository_List_OrderAndFilter(t *testing.T) {
	repo := setupTestDB(t).Workflows()

	low := &domain.Workflow{Name: "low", Enabled: true, Priority: 200}
	high := &domain.Workflow{Name: "high", Enabled: true, Priority: 10}
	mid := &domain.Workflow{Name: "mid", Enabled: false, Priority: 100}
	for _, wf := range []*domain.Workflow{low, high, mid} {
		require.NoError(t, repo.Save(wf))
	}

	all, err := repo.List(domain.WorkflowFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "high", all[0].Name, "Lowest priority value should come first")
	require.Equal(t, "mid", all[1].Name)
	require.Equal(t, "low", all[2].Name)

	enabledTrue := true
	enabled, err := repo.List(domain.WorkflowFilter{Enabled: &enabledTrue})
	require.NoError(t, err)
	require.Len(t, enabled, 2, "Enabled filter should apply")

	limited, err := repo.List(domain.WorkflowFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1, "Limit should apply")
	require.Equal(t, "high", limited[0].Name)
}

func TestWorkflowRepository_Delete(t *testing.T) {
	repo := setupTestDB(t).Workflows()

	wf := &domain.Workflow{Name: "echo", Enabled: true}
	require.NoError(t, repo.Save(wf))

	require.NoError(t, repo.Delete(wf.ID))

	_, err := repo.FindByID(wf.ID)
	var notFound *domain.WorkflowNotFoundError
	require.True(t, errors.As(err, &notFound), "Deleted workflow should not be found")

	err = repo.Delete(wf.ID)
	require.True(t, errors.As(err, &notFound), "Double delete should report not found")
}

func TestWorkflowRepository_Delete_CascadesSubscriptions(t *testing.T) {
	db := setupTestDB(t)
	workflows := db.Workflows()
	subs := db.Subscriptions()

	wf := &domain.Workflow{Name: "echo", Enabled: true}
	require.NoError(t, workflows.Save(wf))

	_, err := subs.Subscribe(1, wf.ID)
	require.NoError(t, err)

	require.NoError(t, workflows.Delete(wf.ID))

	subscribed, err := subs.IsSubscribed(1, wf.ID)
	require.NoError(t, err)
	require.False(t, subscribed, "Deleting the workflow should cascade to its subscriptions")
}
