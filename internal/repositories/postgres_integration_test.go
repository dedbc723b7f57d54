package repositories_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/db"
	"messenger-service/internal/repositories"
	"messenger-service/internal/testtool"
)

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
)

var (
	testDB      *sqlx.DB
	unavailable string
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		unavailable = "short mode"
		os.Exit(m.Run())
	}

	ctx := context.Background()
	dsn, terminate, err := testtool.StartPostgres(ctx)
	if err != nil {
		unavailable = err.Error()
		fmt.Fprintf(os.Stderr, "postgres container not started, integration tests skipped: %v\n", err)
		os.Exit(m.Run())
	}

	testDB, err = db.Connect(ctx, dsn, zerolog.Nop())
	if err != nil {
		_ = terminate(ctx)
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = testDB.Close()
	_ = terminate(ctx)
	os.Exit(code)
}

// freshDB empties every table and seeds alice, bob and carol with ids 1, 2 and 3.
func freshDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testDB == nil {
		t.Skipf("postgres unavailable: %s", unavailable)
	}
	testDB.MustExec(`TRUNCATE messages, user_profiles, users RESTART IDENTITY CASCADE`)
	testDB.MustExec(`INSERT INTO users (username) VALUES ('alice'), ('bob'), ('carol')`)
	return testDB
}

func send(t *testing.T, repo *repositories.MessageRepo, from, to int64, content string) int64 {
	t.Helper()
	msg, err := repo.CreateMessage(context.Background(), from, to, content)
	require.NoError(t, err)
	return msg.ID
}

func TestMessageRepoIDsAndTimestampsIncrease(t *testing.T) {
	repo := repositories.NewMessageRepo(freshDB(t))
	ctx := context.Background()

	var prevID int64
	var prevAt time.Time
	for i := 0; i < 25; i++ {
		msg, err := repo.CreateMessage(ctx, alice, bob, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		assert.Equal(t, alice, msg.SenderID)
		assert.Equal(t, bob, msg.ReceiverID)
		assert.False(t, msg.IsRead)
		if i > 0 {
			assert.Greater(t, msg.ID, prevID)
			assert.True(t, msg.CreatedAt.After(prevAt), "created_at %s not after %s", msg.CreatedAt, prevAt)
		}
		prevID, prevAt = msg.ID, msg.CreatedAt
	}
}

func TestMessageRepoCreateRejectsUnknownReceiver(t *testing.T) {
	repo := repositories.NewMessageRepo(freshDB(t))

	_, err := repo.CreateMessage(context.Background(), alice, 999, "hello")
	require.Error(t, err)

	history, err := repo.ListHistory(context.Background(), alice, 999)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMessageRepoMarkReadIsIdempotent(t *testing.T) {
	repo := repositories.NewMessageRepo(freshDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		send(t, repo, bob, alice, "ping")
	}
	send(t, repo, alice, bob, "pong")
	send(t, repo, carol, alice, "hi")

	n, err := repo.UnreadCountFrom(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = repo.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	updated, err := repo.MarkRead(ctx, bob, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 3, updated)

	updated, err = repo.MarkRead(ctx, bob, alice)
	require.NoError(t, err)
	assert.Zero(t, updated)

	n, err = repo.UnreadCountFrom(ctx, bob, alice)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = repo.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "carol's message stays unread")
	n, err = repo.UnreadCountFrom(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the reverse direction is untouched")
}

func TestMessageRepoListHistoryCoversBothDirections(t *testing.T) {
	repo := repositories.NewMessageRepo(freshDB(t))
	ctx := context.Background()

	first := send(t, repo, alice, bob, "one")
	send(t, repo, alice, carol, "elsewhere")
	second := send(t, repo, bob, alice, "two")
	third := send(t, repo, alice, bob, "three")

	history, err := repo.ListHistory(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{first, second, third}, []int64{history[0].ID, history[1].ID, history[2].ID})
	assert.Equal(t, []string{"one", "two", "three"}, []string{history[0].Content, history[1].Content, history[2].Content})
	assert.False(t, history[1].CreatedAt.Before(history[0].CreatedAt))
	assert.False(t, history[2].CreatedAt.Before(history[1].CreatedAt))

	reverse, err := repo.ListHistory(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, reverse, 3)
	for i := range history {
		assert.Equal(t, history[i].ID, reverse[i].ID)
	}

	empty, err := repo.ListHistory(ctx, bob, carol)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMessageRepoListConversations(t *testing.T) {
	repo := repositories.NewMessageRepo(freshDB(t))
	ctx := context.Background()

	send(t, repo, bob, alice, "b1")
	send(t, repo, bob, alice, "b2")
	send(t, repo, alice, carol, "c1")
	lastBob := send(t, repo, bob, alice, "b3")
	send(t, repo, carol, bob, "not alice's")

	conversations, err := repo.ListConversations(ctx, alice)
	require.NoError(t, err)
	require.Len(t, conversations, 2, "one row per counterpart")

	assert.Equal(t, bob, conversations[0].UserID)
	assert.Equal(t, "bob", conversations[0].Username)
	assert.Equal(t, lastBob, conversations[0].LastMessage.ID)
	assert.Equal(t, "b3", conversations[0].LastMessage.Content)
	assert.Equal(t, 3, conversations[0].UnreadCount)

	assert.Equal(t, carol, conversations[1].UserID)
	assert.Equal(t, "c1", conversations[1].LastMessage.Content)
	assert.Zero(t, conversations[1].UnreadCount, "alice sent the only message")

	_, err = repo.MarkRead(ctx, bob, alice)
	require.NoError(t, err)
	conversations, err = repo.ListConversations(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, conversations[0].UnreadCount)
}

func TestUserRepoGetUser(t *testing.T) {
	repo := repositories.NewUserRepo(freshDB(t))

	user, err := repo.GetUser(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)

	_, err = repo.GetUser(context.Background(), 999)
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestUserRepoListUsersCountsUnreadPerSender(t *testing.T) {
	conn := freshDB(t)
	users := repositories.NewUserRepo(conn)
	messages := repositories.NewMessageRepo(conn)
	presence := repositories.NewPresenceRepo(conn)
	ctx := context.Background()

	send(t, messages, bob, alice, "1")
	send(t, messages, bob, alice, "2")
	send(t, messages, carol, alice, "3")
	send(t, messages, alice, bob, "mine")
	require.NoError(t, presence.SetOnline(ctx, carol, true, time.Now()))

	list, err := users.ListUsers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2, "the viewer is excluded")

	assert.Equal(t, "bob", list[0].Username)
	assert.Equal(t, 2, list[0].UnreadCount)
	assert.False(t, list[0].IsOnline, "no profile row yet")
	assert.Equal(t, "carol", list[1].Username)
	assert.Equal(t, 1, list[1].UnreadCount)
	assert.True(t, list[1].IsOnline)
}

func TestPresenceRepoLifecycle(t *testing.T) {
	repo := repositories.NewPresenceRepo(freshDB(t))
	ctx := context.Background()

	p, err := repo.GetOrCreatePresence(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, p.UserID)
	assert.False(t, p.IsOnline)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.SetOnline(ctx, alice, true, at))

	p, err = repo.GetOrCreatePresence(ctx, alice)
	require.NoError(t, err)
	assert.True(t, p.IsOnline, "an existing row is returned, not reset")
	assert.True(t, at.Equal(p.LastActivity))

	require.NoError(t, repo.SetOnline(ctx, bob, true, at), "upsert creates the row")
	require.NoError(t, repo.ResetPresence(ctx))

	for _, id := range []int64{alice, bob} {
		p, err = repo.GetOrCreatePresence(ctx, id)
		require.NoError(t, err)
		assert.False(t, p.IsOnline)
	}

	_, err = repo.GetOrCreatePresence(ctx, 999)
	assert.Error(t, err, "profiles require a directory user")
}

func TestStoreOverPostgres(t *testing.T) {
	conn := freshDB(t)
	store := repositories.NewStore(repositories.NewMessageRepo(conn), repositories.NewPresenceRepo(conn), repositories.NewUserRepo(conn))
	ctx := context.Background()

	msg, err := store.CreateMessage(ctx, alice, bob, "via store")
	require.NoError(t, err)
	n, err := store.MarkRead(ctx, alice, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	history, err := store.ListHistory(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
	assert.True(t, history[0].IsRead)
}
