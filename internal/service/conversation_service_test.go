package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"dmserver/internal/domain"
	"dmserver/internal/service"
)

func TestFindOrCreateConversation(t *testing.T) {
	other := &domain.User{ID: "u2", Username: "bob"}

	t.Run("Self", func(t *testing.T) {
		svc := service.NewConversationService(new(MockConversationRepo), new(MockMessageRepo), new(MockUserRepo))
		_, err := svc.FindOrCreate(context.Background(), "u1", "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		users := new(MockUserRepo)
		svc := service.NewConversationService(new(MockConversationRepo), new(MockMessageRepo), users)
		users.On("GetByID", mock.Anything, "ghost").Return(nil, nil)

		_, err := svc.FindOrCreate(context.Background(), "u1", "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("CreatesOnFirstContact", func(t *testing.T) {
		users := new(MockUserRepo)
		convs := new(MockConversationRepo)
		svc := service.NewConversationService(convs, new(MockMessageRepo), users)

		users.On("GetByID", mock.Anything, "u2").Return(other, nil)
		convs.On("FindByParticipants", mock.Anything, "u1", "u2").Return(nil, nil)
		convs.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Conversation) bool {
			return c.CreatorID == "u1" && c.RecipientID == "u2"
		})).Return(nil)

		res, err := svc.FindOrCreate(context.Background(), "u1", "u2")
		assert.NoError(t, err)
		assert.True(t, res.Created)
		assert.False(t, res.Reopened)
	})

	t.Run("LosesCreationRace", func(t *testing.T) {
		users := new(MockUserRepo)
		convs := new(MockConversationRepo)
		svc := service.NewConversationService(convs, new(MockMessageRepo), users)

		winner := &domain.Conversation{ID: "c1", CreatorID: "u2", RecipientID: "u1"}
		users.On("GetByID", mock.Anything, "u2").Return(other, nil)
		convs.On("FindByParticipants", mock.Anything, "u1", "u2").Return(nil, nil).Once()
		convs.On("Create", mock.Anything, mock.Anything).
			Return(fmt.Errorf("%w: conversation for this pair already exists", domain.ErrConflict))
		convs.On("FindByParticipants", mock.Anything, "u1", "u2").Return(winner, nil)

		// The other side created the conversation between lookup and insert;
		// the loser gets the winning row, not an error.
		res, err := svc.FindOrCreate(context.Background(), "u1", "u2")
		assert.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, "c1", res.Conversation.ID)
	})

	t.Run("ReturnsExisting", func(t *testing.T) {
		users := new(MockUserRepo)
		convs := new(MockConversationRepo)
		svc := service.NewConversationService(convs, new(MockMessageRepo), users)

		existing := &domain.Conversation{ID: "c1", CreatorID: "u2", RecipientID: "u1"}
		users.On("GetByID", mock.Anything, "u2").Return(other, nil)
		convs.On("FindByParticipants", mock.Anything, "u1", "u2").Return(existing, nil)

		res, err := svc.FindOrCreate(context.Background(), "u1", "u2")
		assert.NoError(t, err)
		assert.False(t, res.Created)
		assert.False(t, res.Reopened)
		assert.Equal(t, "c1", res.Conversation.ID)
	})

	t.Run("ReopensForRequester", func(t *testing.T) {
		users := new(MockUserRepo)
		convs := new(MockConversationRepo)
		svc := service.NewConversationService(convs, new(MockMessageRepo), users)

		existing := &domain.Conversation{
			ID:          "c1",
			CreatorID:   "u1",
			RecipientID: "u2",
			ClosedBy:    []string{"u1", "u2"},
		}
		users.On("GetByID", mock.Anything, "u2").Return(other, nil)
		convs.On("FindByParticipants", mock.Anything, "u1", "u2").Return(existing, nil)
		convs.On("RemoveClosedBy", mock.Anything, "c1", []string{"u1"}).Return(nil)

		res, err := svc.FindOrCreate(context.Background(), "u1", "u2")
		assert.NoError(t, err)
		assert.True(t, res.Reopened)
		// Only the requester is reopened; the other side stays closed.
		assert.Equal(t, []string{"u2"}, res.Conversation.ClosedBy)
	})
}

func TestCloseConversation(t *testing.T) {
	convs := new(MockConversationRepo)
	svc := service.NewConversationService(convs, new(MockMessageRepo), new(MockUserRepo))

	conv := &domain.Conversation{ID: "c1", CreatorID: "u1", RecipientID: "u2"}
	convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
	convs.On("AddClosedBy", mock.Anything, "c1", "u1").Return(nil).Once()

	closed, err := svc.Close(context.Background(), "c1", "u1")
	assert.NoError(t, err)
	assert.True(t, closed.IsClosedBy("u1"))

	// Closing again is an idempotent no-op: AddClosedBy is not called twice.
	closed, err = svc.Close(context.Background(), "c1", "u1")
	assert.NoError(t, err)
	assert.True(t, closed.IsClosedBy("u1"))
	convs.AssertExpectations(t)

	_, err = svc.Close(context.Background(), "c1", "outsider")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListForUserComposesUnreadState(t *testing.T) {
	convs := new(MockConversationRepo)
	msgs := new(MockMessageRepo)
	svc := service.NewConversationService(convs, msgs, new(MockUserRepo))

	now := time.Now().UTC()
	list := []*domain.Conversation{
		{ID: "c2", CreatorID: "u1", RecipientID: "u3", LastMessageSentAt: &now},
		{ID: "c1", CreatorID: "u1", RecipientID: "u2"},
	}
	first := "m9"
	convs.On("ListForUser", mock.Anything, "u1").Return(list, nil)
	msgs.On("LastMessage", mock.Anything, "c2").Return(&domain.Message{ID: "m9"}, nil)
	msgs.On("LastMessage", mock.Anything, "c1").Return(nil, nil)
	msgs.On("UnreadCount", mock.Anything, "c2", "u1").Return(3, nil)
	msgs.On("UnreadCount", mock.Anything, "c1", "u1").Return(0, nil)
	msgs.On("FirstUnreadID", mock.Anything, "c2", "u1").Return(&first, nil)
	msgs.On("FirstUnreadID", mock.Anything, "c1", "u1").Return(nil, nil)

	out, err := svc.ListForUser(context.Background(), "u1")
	assert.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 3, out[0].UnreadMessagesCount)
	assert.Equal(t, "m9", *out[0].FirstUnreadMessageID)
	assert.Nil(t, out[1].FirstUnreadMessageID)
	assert.Nil(t, out[1].LastMessage)
}
