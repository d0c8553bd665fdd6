package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"dmserver/internal/domain"
	"dmserver/internal/security"
	"dmserver/internal/service"
)

func newMessageService(convs *MockConversationRepo, msgs *MockMessageRepo, users *MockUserRepo) *service.MessageService {
	enc, err := security.NewEncryptor([]byte("test-encryption-key"))
	if err != nil {
		panic(err)
	}
	return service.NewMessageService(convs, msgs, users, enc, 50)
}

func TestCreateMessage(t *testing.T) {
	conv := &domain.Conversation{
		ID:          "c1",
		CreatorID:   "u1",
		RecipientID: "u2",
		ClosedBy:    []string{"u2"},
	}

	t.Run("Success", func(t *testing.T) {
		convs := new(MockConversationRepo)
		msgs := new(MockMessageRepo)
		svc := newMessageService(convs, msgs, new(MockUserRepo))

		convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
		msgs.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			// Unread by exactly the other participant, content encrypted.
			return len(m.UnreadBy) == 1 && m.UnreadBy[0] == "u2" &&
				m.AuthorID == "u1" && m.Content != "hi"
		})).Run(func(args mock.Arguments) {
			m := args.Get(1).(*domain.Message)
			m.ID = "m1"
			m.CreatedAt = time.Now().UTC()
		}).Return(nil)

		msg, updatedConv, err := svc.Create(context.Background(), service.MessageCreateInput{
			ConversationID: "c1",
			Content:        "hi",
		}, "u1")
		assert.NoError(t, err)
		assert.Equal(t, []string{"u2"}, msg.UnreadBy)

		// The incoming message reopened the conversation for the recipient
		// and bumped its activity timestamp.
		assert.NotContains(t, updatedConv.ClosedBy, "u2")
		assert.NotNil(t, updatedConv.LastMessageSentAt)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		convs := new(MockConversationRepo)
		svc := newMessageService(convs, new(MockMessageRepo), new(MockUserRepo))

		convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)

		_, _, err := svc.Create(context.Background(), service.MessageCreateInput{
			ConversationID: "c1",
			Content:        "hi",
		}, "outsider")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		svc := newMessageService(new(MockConversationRepo), new(MockMessageRepo), new(MockUserRepo))
		_, _, err := svc.Create(context.Background(), service.MessageCreateInput{
			ConversationID: "c1",
		}, "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ContentTooLong", func(t *testing.T) {
		svc := newMessageService(new(MockConversationRepo), new(MockMessageRepo), new(MockUserRepo))
		_, _, err := svc.Create(context.Background(), service.MessageCreateInput{
			ConversationID: "c1",
			Content:        strings.Repeat("x", 5001),
		}, "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ReplyTargetInOtherConversation", func(t *testing.T) {
		convs := new(MockConversationRepo)
		msgs := new(MockMessageRepo)
		svc := newMessageService(convs, msgs, new(MockUserRepo))

		convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
		replyTo := "m-foreign"
		msgs.On("GetByID", mock.Anything, replyTo).Return(&domain.Message{
			ID:             replyTo,
			ConversationID: "c-other",
		}, nil)

		_, _, err := svc.Create(context.Background(), service.MessageCreateInput{
			ConversationID: "c1",
			Content:        "hi",
			ReplyToID:      &replyTo,
		}, "u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateMessage(t *testing.T) {
	t.Run("AuthorOnly", func(t *testing.T) {
		msgs := new(MockMessageRepo)
		svc := newMessageService(new(MockConversationRepo), msgs, new(MockUserRepo))

		msgs.On("GetByID", mock.Anything, "m1").Return(&domain.Message{
			ID:       "m1",
			AuthorID: "u1",
		}, nil)

		_, err := svc.Update(context.Background(), "m1", "u2", "edited")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("SetsModifiedFlag", func(t *testing.T) {
		msgs := new(MockMessageRepo)
		svc := newMessageService(new(MockConversationRepo), msgs, new(MockUserRepo))

		msgs.On("GetByID", mock.Anything, "m1").Return(&domain.Message{
			ID:       "m1",
			AuthorID: "u1",
		}, nil)
		msgs.On("Update", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.IsModified
		})).Return(nil)

		msg, err := svc.Update(context.Background(), "m1", "u1", "edited")
		assert.NoError(t, err)
		assert.True(t, msg.IsModified)
	})
}

func TestDeleteMessage(t *testing.T) {
	msgs := new(MockMessageRepo)
	svc := newMessageService(new(MockConversationRepo), msgs, new(MockUserRepo))

	msgs.On("GetByID", mock.Anything, "m2").Return(&domain.Message{
		ID:             "m2",
		ConversationID: "c1",
		AuthorID:       "u1",
	}, nil)
	msgs.On("Delete", mock.Anything, "m2").Return(nil)
	msgs.On("LastMessage", mock.Anything, "c1").Return(&domain.Message{ID: "m1"}, nil)

	res, err := svc.Delete(context.Background(), "m2", "u1")
	assert.NoError(t, err)
	assert.Equal(t, "m2", res.MessageID)
	assert.Equal(t, "m1", res.NewLastMessage.ID)

	_, err = svc.Delete(context.Background(), "m2", "u2")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestMarkRead(t *testing.T) {
	conv := &domain.Conversation{ID: "c1", CreatorID: "u1", RecipientID: "u2"}

	convs := new(MockConversationRepo)
	msgs := new(MockMessageRepo)
	svc := newMessageService(convs, msgs, new(MockUserRepo))

	convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
	msgs.On("MarkRead", mock.Anything, "c1", "u2").Return([]string{"m1", "m2"}, nil).Once()
	msgs.On("MarkRead", mock.Anything, "c1", "u2").Return([]string{}, nil)

	ids, err := svc.MarkRead(context.Background(), "c1", "u2")
	assert.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)

	// Idempotent: the second call transitions nothing.
	ids, err = svc.MarkRead(context.Background(), "c1", "u2")
	assert.NoError(t, err)
	assert.Empty(t, ids)

	_, err = svc.MarkRead(context.Background(), "c1", "outsider")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListReturnsChronological(t *testing.T) {
	conv := &domain.Conversation{ID: "c1", CreatorID: "u1", RecipientID: "u2"}

	convs := new(MockConversationRepo)
	msgs := new(MockMessageRepo)
	svc := newMessageService(convs, msgs, new(MockUserRepo))

	now := time.Now().UTC()
	convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
	msgs.On("ListForConversation", mock.Anything, "c1", (*time.Time)(nil), 50).Return([]*domain.Message{
		{ID: "m3", CreatedAt: now},
		{ID: "m2", CreatedAt: now.Add(-time.Minute)},
		{ID: "m1", CreatedAt: now.Add(-2 * time.Minute)},
	}, nil)

	out, err := svc.List(context.Background(), "c1", "u1", nil, 0)
	assert.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestToResponseDecrypts(t *testing.T) {
	msgs := new(MockMessageRepo)
	users := new(MockUserRepo)
	svc := newMessageService(new(MockConversationRepo), msgs, users)

	enc, err := security.NewEncryptor([]byte("test-encryption-key"))
	assert.NoError(t, err)
	cipher, err := enc.Encrypt("hello")
	assert.NoError(t, err)

	users.On("GetByID", mock.Anything, "u1").Return(&domain.User{ID: "u1", Username: "alice"}, nil)

	resp, err := svc.ToResponse(context.Background(), &domain.Message{
		ID:       "m1",
		Content:  cipher,
		AuthorID: "u1",
	})
	assert.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "alice", resp.AuthorUsername)
	assert.NotNil(t, resp.UnreadBy)
}
