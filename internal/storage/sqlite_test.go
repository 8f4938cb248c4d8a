package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/cellflow/internal/common"
	"github.com/ledgersmith/cellflow/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func sampleSession() *model.MappingSession {
	return &model.MappingSession{
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		ID:              "sess-1",
		OntologyVersion: "v-test",
		TemplateName:    "balance",
		Status:          model.StatusPendingReview,
		Results: []model.ClassificationResult{
			{
				ClassifiedAt:    time.Now().UTC().Truncate(time.Second),
				LineItemID:      "li-1",
				CategoryID:      "asset-cash",
				WinningStrategy: model.StrategyRule,
				Rationale:       "matched keywords: cash",
				OntologyVersion: "v-test",
				Confidence:      0.9,
				Candidates: model.CandidateMatches{
					{CategoryID: "asset-cash", Score: 0.9, Strategy: model.StrategyRule, Rationale: "matched keywords: cash"},
					{CategoryID: "asset-cash", Score: 0.82, Strategy: model.StrategyEmbedding},
				},
			},
			{
				ClassifiedAt:    time.Now().UTC().Truncate(time.Second),
				LineItemID:      "li-2",
				OntologyVersion: "v-test",
				Rationale:       "no strategy produced a candidate",
			},
		},
		Assignments: model.Assignments{
			{
				ID:          "a1",
				LineItemID:  "li-1",
				SourceID:    "li-1",
				CellAddress: "B10",
				Value:       500.25,
				SourceOrder: 0,
				Coordinates: model.Coordinates{Page: 2, Row: 14},
			},
			{
				ID:          "a2",
				SourceID:    "manual",
				CellAddress: "B20",
				Value:       1234.5,
			},
		},
		Conflicts: []model.Conflict{
			{
				ID:            "c1",
				Type:          model.ConflictDuplicateTarget,
				Severity:      model.SeverityHigh,
				CellAddress:   "B10",
				AssignmentIDs: []string{"a1"},
				Suggestions:   []string{"Cash and equivalents"},
				State:         model.ConflictResolved,
				Resolution:    "chose line item li-1 for cell B10",
			},
			{
				ID:          "c2",
				Type:        model.ConflictMissingRequired,
				Severity:    model.SeverityCritical,
				CellAddress: "B30",
				State:       model.ConflictOpen,
			},
		},
		Unmapped: []string{"li-2"},
	}
}

func TestSaveAndGetSession(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	original := sampleSession()

	require.NoError(t, store.SaveSession(ctx, original))

	loaded, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.TemplateName, loaded.TemplateName)
	assert.Equal(t, original.OntologyVersion, loaded.OntologyVersion)
	assert.Equal(t, original.Status, loaded.Status)

	require.Len(t, loaded.Results, 2)
	assert.Equal(t, "asset-cash", loaded.Results[0].CategoryID)
	assert.Equal(t, model.StrategyRule, loaded.Results[0].WinningStrategy)
	assert.Len(t, loaded.Results[0].Candidates, 2)
	assert.True(t, loaded.Results[1].Unclassified())

	require.Len(t, loaded.Assignments, 2)
	byID := make(map[string]model.Assignment, len(loaded.Assignments))
	for _, a := range loaded.Assignments {
		byID[a.ID] = a
	}
	assert.Equal(t, "B10", byID["a1"].CellAddress)
	assert.InDelta(t, 500.25, byID["a1"].Value, 0.0001)
	assert.Equal(t, model.Coordinates{Page: 2, Row: 14}, byID["a1"].Coordinates)
	assert.Equal(t, "manual", byID["a2"].SourceID)
	assert.Empty(t, byID["a2"].LineItemID)

	require.Len(t, loaded.Conflicts, 2)
	c1 := loaded.FindConflict("c1")
	require.NotNil(t, c1)
	assert.Equal(t, model.ConflictResolved, c1.State)
	assert.Equal(t, []string{"a1"}, c1.AssignmentIDs)
	assert.Equal(t, []string{"Cash and equivalents"}, c1.Suggestions)
	c2 := loaded.FindConflict("c2")
	require.NotNil(t, c2)
	assert.Equal(t, model.ConflictOpen, c2.State)

	assert.Equal(t, []string{"li-2"}, loaded.Unmapped)
}

func TestSaveSessionUpserts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	session := sampleSession()
	require.NoError(t, store.SaveSession(ctx, session))

	// Resolve the remaining conflict and save again.
	require.NoError(t, session.Conflicts[1].Resolve("cell B30 set manually to 10.00"))
	session.Status = model.StatusReady
	require.NoError(t, store.SaveSession(ctx, session))

	loaded, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, loaded.Status)
	assert.Empty(t, loaded.OpenConflicts())
	assert.Len(t, loaded.Conflicts, 2)
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.GetSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveSessionRequiresID(t *testing.T) {
	store := newTestStorage(t)

	err := store.SaveSession(context.Background(), &model.MappingSession{})
	assert.ErrorContains(t, err, "must have an id")
}

func TestListSessions(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := sampleSession()
	require.NoError(t, store.SaveSession(ctx, first))

	second := sampleSession()
	second.ID = "sess-2"
	second.Status = model.StatusReady
	second.Conflicts = nil
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	require.NoError(t, store.SaveSession(ctx, second))

	summaries, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest first.
	assert.Equal(t, "sess-2", summaries[0].ID)
	assert.Equal(t, model.StatusReady, summaries[0].Status)
	assert.Equal(t, 0, summaries[0].OpenConflicts)
	assert.Equal(t, 2, summaries[0].Assignments)

	assert.Equal(t, "sess-1", summaries[1].ID)
	assert.Equal(t, 1, summaries[1].OpenConflicts)
}

func TestDeleteSession(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, sampleSession()))
	require.NoError(t, store.DeleteSession(ctx, "sess-1"))

	_, err := store.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, store.DeleteSession(ctx, "sess-1"), common.ErrNotFound)
}

func TestMigrateIdempotent(t *testing.T) {
	store := newTestStorage(t)

	// Migrate ran once in newTestStorage; a second run is a no-op.
	require.NoError(t, store.Migrate(context.Background()))
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	store := newTestStorage(t)

	// Simulate a database already migrated by a newer build.
	_, err := store.db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, ExpectedSchemaVersion+1)
	require.NoError(t, err)

	err = store.Migrate(context.Background())
	assert.ErrorContains(t, err, "schema version")
}

func TestNewSQLiteStorageRequiresPath(t *testing.T) {
	_, err := NewSQLiteStorage("")
	assert.ErrorContains(t, err, "cannot be empty")
}
