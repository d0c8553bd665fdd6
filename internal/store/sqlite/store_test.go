package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmserver/internal/domain"
	"dmserver/internal/store/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	// One connection keeps the in-memory database (and its pragmas) alive.
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sql.DB, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, HashedPassword: "x"}
	require.NoError(t, sqlite.NewUserRepo(db).Create(context.Background(), u))
	return u
}

func createConversation(t *testing.T, db *sql.DB, creator, recipient *domain.User) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{CreatorID: creator.ID, RecipientID: recipient.ID}
	require.NoError(t, sqlite.NewConversationRepo(db).Create(context.Background(), c))
	return c
}

func TestUserRepo(t *testing.T) {
	db := newTestDB(t)
	repo := sqlite.NewUserRepo(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	createUser(t, db, "albert")
	createUser(t, db, "bob")

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	got, err = repo.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	matches, err := repo.Search(ctx, "al", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestConversationLookupIsUnordered(t *testing.T) {
	db := newTestDB(t)
	repo := sqlite.NewConversationRepo(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	conv := createConversation(t, db, alice, bob)

	got, err := repo.FindByParticipants(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, conv.ID, got.ID)

	// Same conversation regardless of argument order.
	got, err = repo.FindByParticipants(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, conv.ID, got.ID)

	// The reversed pair cannot slip in a second conversation, even when two
	// inserts race past the service's lookup.
	dup := &domain.Conversation{CreatorID: bob.ID, RecipientID: alice.ID}
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrConflict)
}

func TestMessageCreateEffects(t *testing.T) {
	db := newTestDB(t)
	convRepo := sqlite.NewConversationRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	conv := createConversation(t, db, alice, bob)

	// Both sides had hidden the conversation.
	require.NoError(t, convRepo.AddClosedBy(ctx, conv.ID, alice.ID))
	require.NoError(t, convRepo.AddClosedBy(ctx, conv.ID, bob.ID))

	msg := &domain.Message{
		Content:        "ciphertext",
		ConversationID: conv.ID,
		AuthorID:       alice.ID,
		UnreadBy:       []string{bob.ID},
	}
	require.NoError(t, msgRepo.Create(ctx, msg))

	got, err := msgRepo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, got.UnreadBy)

	// The incoming message reopened the conversation for the recipient
	// only and bumped the activity timestamp.
	reloaded, err := convRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, reloaded.ClosedBy)
	require.NotNil(t, reloaded.LastMessageSentAt)
	assert.WithinDuration(t, msg.CreatedAt, *reloaded.LastMessageSentAt, time.Second)
}

func TestMarkReadIsIdempotentAndSkipsOwnMessages(t *testing.T) {
	db := newTestDB(t)
	msgRepo := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	conv := createConversation(t, db, alice, bob)

	base := time.Now().UTC().Add(-time.Hour)
	var fromAlice []string
	for i := 0; i < 3; i++ {
		m := &domain.Message{
			Content:        "m",
			ConversationID: conv.ID,
			AuthorID:       alice.ID,
			UnreadBy:       []string{bob.ID},
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, msgRepo.Create(ctx, m))
		fromAlice = append(fromAlice, m.ID)
	}
	// A reply from bob, unread by alice; bob's markRead must not touch it.
	reply := &domain.Message{
		Content:        "m",
		ConversationID: conv.ID,
		AuthorID:       bob.ID,
		UnreadBy:       []string{alice.ID},
		CreatedAt:      base.Add(10 * time.Minute),
	}
	require.NoError(t, msgRepo.Create(ctx, reply))

	count, err := msgRepo.UnreadCount(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	first, err := msgRepo.FirstUnreadID(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, fromAlice[0], *first)

	ids, err := msgRepo.MarkRead(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, fromAlice, ids)

	// Second call transitions nothing.
	ids, err = msgRepo.MarkRead(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Alice's own unread state is untouched by bob's read.
	count, err = msgRepo.UnreadCount(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSidebarOrdering(t *testing.T) {
	db := newTestDB(t)
	convRepo := sqlite.NewConversationRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")
	dave := createUser(t, db, "dave")

	old := time.Now().UTC().Add(-2 * time.Hour)
	withBob := &domain.Conversation{CreatorID: alice.ID, RecipientID: bob.ID, CreatedAt: old}
	require.NoError(t, convRepo.Create(ctx, withBob))
	withCarol := &domain.Conversation{CreatorID: alice.ID, RecipientID: carol.ID, CreatedAt: old.Add(time.Minute)}
	require.NoError(t, convRepo.Create(ctx, withCarol))
	withDave := &domain.Conversation{CreatorID: alice.ID, RecipientID: dave.ID, CreatedAt: old.Add(2 * time.Minute)}
	require.NoError(t, convRepo.Create(ctx, withDave))

	// Without messages the newest conversation leads.
	list, err := convRepo.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, withDave.ID, list[0].ID)

	// A message in the oldest conversation pushes it to the top.
	require.NoError(t, msgRepo.Create(ctx, &domain.Message{
		Content:        "m",
		ConversationID: withBob.ID,
		AuthorID:       bob.ID,
		UnreadBy:       []string{alice.ID},
	}))
	list, err = convRepo.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, withBob.ID, list[0].ID)

	// Closed conversations disappear from the viewer's sidebar only.
	require.NoError(t, convRepo.AddClosedBy(ctx, withCarol.ID, alice.ID))
	list, err = convRepo.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = convRepo.ListForUser(ctx, carol.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	convRepo := sqlite.NewConversationRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	conv := createConversation(t, db, alice, bob)

	root := &domain.Message{
		Content:        "m",
		ConversationID: conv.ID,
		AuthorID:       alice.ID,
		UnreadBy:       []string{bob.ID},
	}
	require.NoError(t, msgRepo.Create(ctx, root))
	reply := &domain.Message{
		Content:        "m",
		ConversationID: conv.ID,
		AuthorID:       bob.ID,
		ReplyToID:      &root.ID,
	}
	require.NoError(t, msgRepo.Create(ctx, reply))

	// Deleting the target cascades to its replies.
	require.NoError(t, msgRepo.Delete(ctx, root.ID))
	got, err := msgRepo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Unread markers went with the message.
	count, err := msgRepo.UnreadCount(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Deleting the conversation removes remaining messages.
	require.NoError(t, msgRepo.Create(ctx, &domain.Message{
		Content:        "m",
		ConversationID: conv.ID,
		AuthorID:       alice.ID,
	}))
	require.NoError(t, convRepo.Delete(ctx, conv.ID))
	last, err := msgRepo.LastMessage(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	assert.ErrorIs(t, convRepo.Delete(ctx, conv.ID), domain.ErrNotFound)
}

func TestFriendRepoStateMachine(t *testing.T) {
	db := newTestDB(t)
	repo := sqlite.NewFriendRepo(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	require.NoError(t, repo.CreateRequest(ctx, &domain.FriendRequest{
		SenderID:   alice.ID,
		ReceiverID: bob.ID,
	}))

	// While one request is pending, neither direction may create another.
	assert.ErrorIs(t, repo.CreateRequest(ctx, &domain.FriendRequest{
		SenderID:   bob.ID,
		ReceiverID: alice.ID,
	}), domain.ErrConflict)

	// Pending is visible from both directions.
	pending, err := repo.HasPendingBetween(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, pending)
	pending, err = repo.HasPendingBetween(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, repo.AcceptRequest(ctx, alice.ID, bob.ID))

	// Accepting again fails: the request is gone.
	assert.ErrorIs(t, repo.AcceptRequest(ctx, alice.ID, bob.ID), domain.ErrNotFound)

	friends, err := repo.AreFriends(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, friends)

	names, err := repo.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "bob", names[0].Username)

	require.NoError(t, repo.DeleteFriendship(ctx, alice.ID, bob.ID))
	friends, err = repo.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	// After removal the pair may start over.
	require.NoError(t, repo.CreateRequest(ctx, &domain.FriendRequest{
		SenderID:   bob.ID,
		ReceiverID: alice.ID,
	}))
	sent, err := repo.ListSentRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].Username)
	received, err := repo.ListReceivedRequests(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "bob", received[0].Username)
}
