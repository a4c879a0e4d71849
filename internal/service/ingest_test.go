package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/parser"
	"mailinchat/backend/internal/queue"
	"mailinchat/backend/internal/storage"
	"mailinchat/backend/internal/storage/memory"
)

type pipeline struct {
	store     *memory.Store
	provider  *MockProvider
	publisher *MockPublisher
	ingest    *IngestService
}

func newPipeline(t *testing.T, directory storage.ProfileDirectory, relations storage.RelationStore, chats storage.ChatStore) *pipeline {
	t.Helper()

	store := memory.NewStore()
	if directory == nil {
		directory = store
	}
	if relations == nil {
		relations = store
	}
	if chats == nil {
		chats = store
	}

	provider := &MockProvider{}
	publisher := &MockPublisher{}
	log := zap.NewNop()

	return &pipeline{
		store:     store,
		provider:  provider,
		publisher: publisher,
		ingest: NewIngestService(IngestDeps{
			Provider:     provider,
			Publisher:    publisher,
			Resolver:     NewIdentityResolver(directory, nil, log),
			Relations:    NewRelationManager(relations, nil, log),
			Materializer: NewMessageMaterializer(chats, nil, log),
			InboxLabel:   "INBOX",
			Logger:       log,
		}),
	}
}

func mustProfile(t *testing.T, dir storage.ProfileDirectory, emails, aliases []string) *domain.Profile {
	t.Helper()
	p, err := dir.CreateProfile(context.Background(), domain.ProfileFields{Emails: emails, MailChatAliases: aliases})
	require.NoError(t, err)
	return p
}

func TestIngestService_ParseAndSave_EndToEnd(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, nil, nil)

	bob := mustProfile(t, p.store, []string{"bob@corp.com"}, []string{"b"})
	carol := mustProfile(t, p.store, []string{"carol@corp.com"}, []string{"c"})

	p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "Alice <a@x.com>", "b@y.com, c@y.com", ""), nil)
	p.publisher.On("Publish", mock.Anything, queue.TopicAttachment, mock.Anything).Return(nil)

	result, err := p.ingest.ParseAndSave(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.SenderCreated)
	assert.Equal(t, 2, result.Delivered())
	assert.Empty(t, result.Failed())

	senders, err := p.store.FindProfiles(ctx, domain.ProfileQuery{Emails: []string{"a@x.com"}})
	require.NoError(t, err)
	require.Len(t, senders, 1)
	assert.Equal(t, senders[0].ID, result.SenderProfileID)

	recipients := map[string]bool{}
	for _, o := range result.Outcomes {
		require.NotNil(t, o.Relation)
		assert.True(t, o.RelationCreated)
		assert.Equal(t, result.SenderProfileID, o.Relation.LeftProfileID)
		recipients[o.ProfileID] = true
	}
	assert.Equal(t, map[string]bool{bob.ID: true, carol.ID: true}, recipients)

	messages := p.store.ListMessages()
	require.Len(t, messages, 2)
	payload, ok := p.store.MessagePayload(messages[0].ID)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", payload.From)
	assert.Equal(t, "hi there", payload.Text)
	assert.Equal(t, []string{"b", "c"}, payload.ToAlias)
	require.Len(t, payload.Attachments, 1)

	p.publisher.AssertCalled(t, "Publish", mock.Anything, queue.TopicAttachment, AttachmentTask{
		MessageID:    "m1",
		AttachmentID: "att-m1",
		MimeType:     "application/pdf",
		Filename:     "invoice.pdf",
	})

	t.Run("再次投递复用关系与发件人", func(t *testing.T) {
		p.provider.On("GetMessage", mock.Anything, "m2").Return(rawMessage("m2", "a@x.com", "b@y.com", "c@y.com"), nil)

		again, err := p.ingest.ParseAndSave(ctx, "m2")
		require.NoError(t, err)

		assert.False(t, again.SenderCreated)
		assert.Equal(t, result.SenderProfileID, again.SenderProfileID)
		for _, o := range again.Outcomes {
			assert.False(t, o.RelationCreated)
		}

		relations, err := p.store.ListRelations(ctx, result.SenderProfileID)
		require.NoError(t, err)
		assert.Len(t, relations, 2)
		assert.Len(t, p.store.ListMessages(), 4)
	})
}

func TestIngestService_ParseAndSave_SelfExclusion(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, nil, nil)

	alice := mustProfile(t, p.store, []string{"a@x.com"}, []string{"a"})
	bob := mustProfile(t, p.store, []string{"bob@corp.com"}, []string{"b"})

	p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "a@x.com", "a@y.com, b@y.com", ""), nil)
	p.publisher.On("Publish", mock.Anything, queue.TopicAttachment, mock.Anything).Return(nil)

	result, err := p.ingest.ParseAndSave(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, alice.ID, result.SenderProfileID)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, bob.ID, result.Outcomes[0].ProfileID)

	messages := p.store.ListMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, bob.ID, messages[0].ToProfileID)
}

func TestIngestService_ParseAndSave_NoRecipients(t *testing.T) {
	ctx := context.Background()

	t.Run("没有收件人头", func(t *testing.T) {
		store := memory.NewStore()
		dir := &countingDirectory{Store: store}
		p := newPipeline(t, dir, store, store)

		p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "a@x.com", "", ""), nil)

		result, err := p.ingest.ParseAndSave(ctx, "m1")
		assert.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, 0, dir.creates)
		// 没有别名时不查询收件人
		require.Len(t, dir.queries, 1)
		assert.Equal(t, []string{"a@x.com"}, dir.queries[0].Emails)
		assert.Empty(t, store.ListMessages())
		p.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("别名未匹配任何档案", func(t *testing.T) {
		store := memory.NewStore()
		dir := &countingDirectory{Store: store}
		p := newPipeline(t, dir, store, store)

		p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "a@x.com", "nobody@y.com", ""), nil)

		result, err := p.ingest.ParseAndSave(ctx, "m1")
		assert.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, 0, dir.creates)
		relations, _ := store.ListRelations(ctx, "any")
		assert.Empty(t, relations)
	})
}

func TestIngestService_ParseAndSave_PartialFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("单个消息写入失败不影响其他收件人", func(t *testing.T) {
		store := memory.NewStore()
		bob := mustProfile(t, store, nil, []string{"b"})
		carol := mustProfile(t, store, nil, []string{"c"})
		chats := &failingChatStore{Store: store, failFor: map[string]bool{carol.ID: true}}

		p := newPipeline(t, store, store, chats)
		p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "a@x.com", "b@y.com, c@y.com", ""), nil)
		p.publisher.On("Publish", mock.Anything, queue.TopicAttachment, mock.Anything).Return(nil)

		result, err := p.ingest.ParseAndSave(ctx, "m1")
		require.Error(t, err)
		require.NotNil(t, result)
		assert.Contains(t, err.Error(), carol.ID)

		assert.Equal(t, 1, result.Delivered())
		failed := result.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, carol.ID, failed[0].ProfileID)
		assert.Equal(t, domain.StageMessage, failed[0].FailedStage)
		// 关系已建立，只是消息失败
		assert.NotNil(t, failed[0].Relation)

		messages := store.ListMessages()
		require.Len(t, messages, 1)
		assert.Equal(t, bob.ID, messages[0].ToProfileID)
	})

	t.Run("关系创建失败时跳过该收件人的消息", func(t *testing.T) {
		store := memory.NewStore()
		bob := mustProfile(t, store, nil, []string{"b"})
		carol := mustProfile(t, store, nil, []string{"c"})
		relations := &failingRelationStore{Store: store, failFor: map[string]bool{bob.ID: true}}

		p := newPipeline(t, store, relations, store)
		p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "a@x.com", "b@y.com, c@y.com", ""), nil)
		p.publisher.On("Publish", mock.Anything, queue.TopicAttachment, mock.Anything).Return(nil)

		result, err := p.ingest.ParseAndSave(ctx, "m1")
		require.Error(t, err)

		failed := result.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, bob.ID, failed[0].ProfileID)
		assert.Equal(t, domain.StageRelation, failed[0].FailedStage)

		messages := store.ListMessages()
		require.Len(t, messages, 1)
		assert.Equal(t, carol.ID, messages[0].ToProfileID)
	})
}

func TestIngestService_ParseAndSave_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("拉取邮件失败", func(t *testing.T) {
		p := newPipeline(t, nil, nil, nil)
		p.provider.On("GetMessage", mock.Anything, "m1").Return(nil, errors.New("401 unauthorized"))

		result, err := p.ingest.ParseAndSave(ctx, "m1")
		assert.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("缺少发件人", func(t *testing.T) {
		p := newPipeline(t, nil, nil, nil)
		p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "undisclosed", "b@y.com", ""), nil)

		_, err := p.ingest.ParseAndSave(ctx, "m1")
		assert.ErrorIs(t, err, parser.ErrMissingSender)
	})
}

func TestIngestService_RunCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("先整批标记已读再发布解析任务", func(t *testing.T) {
		p := newPipeline(t, nil, nil, nil)

		var (
			mu    sync.Mutex
			order []string
		)
		record := func(step string) func(mock.Arguments) {
			return func(mock.Arguments) {
				mu.Lock()
				order = append(order, step)
				mu.Unlock()
			}
		}

		p.provider.On("ListMessageIDs", mock.Anything, []string{"UNREAD", "INBOX"}).Return([]string{"m1", "m2", "m3"}, nil)
		p.provider.On("MarkRead", mock.Anything, []string{"m1", "m2", "m3"}).Return(nil).Run(record("markRead"))
		p.publisher.On("Publish", mock.Anything, queue.TopicParse, ParseTask{MessageID: "m1"}).Return(nil).Run(record("publish"))
		p.publisher.On("Publish", mock.Anything, queue.TopicParse, ParseTask{MessageID: "m2"}).Return(errors.New("queue full")).Run(record("publish"))
		p.publisher.On("Publish", mock.Anything, queue.TopicParse, ParseTask{MessageID: "m3"}).Return(nil).Run(record("publish"))

		published, err := p.ingest.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, published)
		assert.Equal(t, []string{"markRead", "publish", "publish", "publish"}, order)
		p.provider.AssertExpectations(t)
		p.publisher.AssertExpectations(t)
	})

	t.Run("没有未读邮件", func(t *testing.T) {
		p := newPipeline(t, nil, nil, nil)
		p.provider.On("ListMessageIDs", mock.Anything, mock.Anything).Return([]string{}, nil)

		published, err := p.ingest.RunCycle(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)
		p.provider.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
	})

	t.Run("标记已读失败时不发布任务", func(t *testing.T) {
		p := newPipeline(t, nil, nil, nil)
		p.provider.On("ListMessageIDs", mock.Anything, mock.Anything).Return([]string{"m1"}, nil)
		p.provider.On("MarkRead", mock.Anything, []string{"m1"}).Return(errors.New("503"))

		_, err := p.ingest.RunCycle(ctx)
		assert.Error(t, err)
		p.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("列出邮件失败", func(t *testing.T) {
		p := newPipeline(t, nil, nil, nil)
		p.provider.On("ListMessageIDs", mock.Anything, mock.Anything).Return(nil, errors.New("network"))

		_, err := p.ingest.RunCycle(ctx)
		assert.Error(t, err)
	})
}

func TestIngestService_HandleParse(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, nil, nil)
	p.provider.On("GetMessage", mock.Anything, "m1").Return(rawMessage("m1", "a@x.com", "", ""), nil)

	assert.NoError(t, p.ingest.HandleParse(ctx, &queue.Task{ID: "t1", Payload: []byte(`{"messageId":"m1"}`)}))
	assert.Error(t, p.ingest.HandleParse(ctx, &queue.Task{ID: "t2", Payload: []byte(`{}`)}))
	assert.Error(t, p.ingest.HandleParse(ctx, &queue.Task{ID: "t3", Payload: []byte(`not json`)}))
}

func TestIngestService_RequestCycle(t *testing.T) {
	p := newPipeline(t, nil, nil, nil)
	p.publisher.On("Publish", mock.Anything, queue.TopicFetch, nil).Return(nil)

	require.NoError(t, p.ingest.RequestCycle(context.Background()))
	p.publisher.AssertExpectations(t)
}
