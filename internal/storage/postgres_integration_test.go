//go:build integration

package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
	"github.com/terra-clan/hackathon-leaderboard/internal/livesync"
	"github.com/terra-clan/hackathon-leaderboard/internal/models"
	"github.com/terra-clan/hackathon-leaderboard/migrations"
)

func setupPostgres(t *testing.T) (*PostgresRepository, string) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("leaderboard"),
		postgres.WithUsername("leaderboard"),
		postgres.WithPassword("leaderboard"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, RunMigrations(ctx, repo.Pool(), migrations.FS))
	// Second run is a no-op
	require.NoError(t, RunMigrations(ctx, repo.Pool(), migrations.FS))

	return repo, dsn
}

func createTeam(t *testing.T, repo *PostgresRepository, name string) *models.Team {
	t.Helper()
	team := &models.Team{Name: name}
	require.NoError(t, repo.CreateTeam(context.Background(), team))
	return team
}

func TestPostgresRepository(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()

	badge := &models.Badge{ID: "gold", Name: "Gold", Icon: "🏆", CriteriaType: models.CriteriaTopPosition, CriteriaValue: 1}
	require.NoError(t, repo.UpsertBadge(ctx, badge))
	badge.Name = "Gold Medal"
	require.NoError(t, repo.UpsertBadge(ctx, badge))

	a := createTeam(t, repo, "A")
	b := createTeam(t, repo, "B")
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 1, a.Level)

	t.Run("score trigger keeps totals and level", func(t *testing.T) {
		require.NoError(t, repo.CreateScoreEvent(ctx, &models.ScoreEvent{TeamID: a.ID, Points: 300, Reason: "demo"}))
		require.NoError(t, repo.CreateScoreEvent(ctx, &models.ScoreEvent{TeamID: a.ID, Points: -20, Reason: "late"}))
		require.NoError(t, repo.CreateScoreEvent(ctx, &models.ScoreEvent{TeamID: b.ID, Points: 100, Reason: "demo"}))

		got, err := repo.GetTeam(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 280, got.TotalPoints)
		assert.Equal(t, 2, got.Level)

		teams, err := repo.ListTeams(ctx)
		require.NoError(t, err)
		require.Len(t, teams, 2)
		assert.Equal(t, a.ID, teams[0].ID)

		events, err := repo.ListScoreEvents(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, -20, events[0].Points)
	})

	t.Run("missing rows", func(t *testing.T) {
		got, err := repo.GetTeam(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)

		err = repo.CreateScoreEvent(ctx, &models.ScoreEvent{TeamID: "nope", Points: 1, Reason: "x"})
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, repo.DeleteTeam(ctx, "nope"), ErrNotFound)
	})

	t.Run("badges", func(t *testing.T) {
		require.NoError(t, repo.AwardBadge(ctx, &models.TeamBadge{TeamID: a.ID, BadgeID: "gold"}))
		assert.ErrorIs(t, repo.AwardBadge(ctx, &models.TeamBadge{TeamID: a.ID, BadgeID: "gold"}), ErrAlreadyAwarded)
		assert.ErrorIs(t, repo.AwardBadge(ctx, &models.TeamBadge{TeamID: a.ID, BadgeID: "platinum"}), ErrNotFound)

		links, err := repo.ListTeamBadgesByTeam(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, links, 1)

		found, err := repo.ListBadgesByIDs(ctx, []string{"gold", "platinum"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Gold Medal", found[0].Name)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, repo.DeleteTeam(ctx, a.ID))

		events, err := repo.ListScoreEvents(ctx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, events)

		links, err := repo.ListTeamBadges(ctx)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("api clients", func(t *testing.T) {
		_, err := repo.Pool().Exec(ctx,
			`INSERT INTO api_clients (name, api_key, permissions) VALUES ($1, $2, $3)`,
			"judge", "sk_judge_12345678", []string{"scores:*"})
		require.NoError(t, err)

		client, err := repo.GetClientByApiKey(ctx, "sk_judge_12345678")
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.True(t, client.HasPermission(models.PermScoresWrite))
		assert.False(t, client.HasPermission(models.PermTeamsWrite))
		assert.Nil(t, client.LastUsedAt)

		require.NoError(t, repo.UpdateClientLastUsed(ctx, "sk_judge_12345678"))
		client, err = repo.GetClientByApiKey(ctx, "sk_judge_12345678")
		require.NoError(t, err)
		assert.NotNil(t, client.LastUsedAt)

		missing, err := repo.GetClientByApiKey(ctx, "sk_unknown")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestPostgresFeed_TriggersNotify(t *testing.T) {
	repo, dsn := setupPostgres(t)
	ctx := context.Background()

	feed := changefeed.NewPostgresFeed(changefeed.PostgresConfig{DSN: dsn}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sub, err := feed.Subscribe(ctx, changefeed.TopicTeams)
	require.NoError(t, err)
	defer sub.Close()

	createTeam(t, repo, "A")

	select {
	case ev := <-sub.Events():
		assert.Equal(t, changefeed.TopicTeams, ev.Topic)
		assert.Equal(t, "INSERT", ev.Operation)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification for team insert")
	}
}

func TestLiveLeaderboardEndToEnd(t *testing.T) {
	repo, dsn := setupPostgres(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := createTeam(t, repo, "A")
	b := createTeam(t, repo, "B")
	require.NoError(t, repo.CreateScoreEvent(ctx, &models.ScoreEvent{TeamID: a.ID, Points: 300, Reason: "demo"}))
	require.NoError(t, repo.CreateScoreEvent(ctx, &models.ScoreEvent{TeamID: b.ID, Points: 100, Reason: "demo"}))

	feed := changefeed.NewPostgresFeed(changefeed.PostgresConfig{DSN: dsn}, logger)
	controller := livesync.NewController(repo, feed, livesync.WithLogger(logger))
	require.NoError(t, controller.Start(ctx))
	defer controller.Stop()

	snap := controller.Snapshot()
	require.True(t, snap.Live)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, a.ID, snap.Entries[0].ID)

	require.NoError(t, repo.CreateScoreEvent(ctx, &models.ScoreEvent{TeamID: b.ID, Points: 250, Reason: "finale"}))

	require.Eventually(t, func() bool {
		s := controller.Snapshot()
		return len(s.Entries) == 2 && s.Entries[0].ID == b.ID
	}, 5*time.Second, 20*time.Millisecond)

	top := controller.Snapshot().Entries[0]
	require.NotNil(t, top.PreviousRank)
	assert.Equal(t, 2, *top.PreviousRank)
	assert.Equal(t, 1, top.RankChange())
	assert.InDelta(t, 100.0, top.ProgressPercentage, 1e-9)

	details, err := livesync.NewDetailReader(repo).Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, details.ScoreEvents, 2)
}
