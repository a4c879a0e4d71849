package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/storage"
)

func TestMemoryStore_ProfileOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	company, err := store.CreateProfile(ctx, domain.ProfileFields{
		Emails:          []string{"Office@Y.com"},
		MailChatAliases: []string{"support", "sales"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, company.ID)

	person, err := store.CreateProfile(ctx, domain.ProfileFields{Emails: []string{"a@x.com"}})
	require.NoError(t, err)

	// Test FindProfiles by email (case-insensitive)
	found, err := store.FindProfiles(ctx, domain.ProfileQuery{Emails: []string{"office@y.com"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, company.ID, found[0].ID)

	// Test FindProfiles by aliases, deduplicated
	found, err = store.FindProfiles(ctx, domain.ProfileQuery{Aliases: []string{"support", "sales", "unknown"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, company.ID, found[0].ID)

	// Test FindProfiles with both criteria
	found, err = store.FindProfiles(ctx, domain.ProfileQuery{Emails: []string{"a@x.com"}, Aliases: []string{"sales"}})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	// Test empty query
	found, err = store.FindProfiles(ctx, domain.ProfileQuery{})
	require.NoError(t, err)
	assert.Empty(t, found)

	// Test invalid profile
	_, err = store.CreateProfile(ctx, domain.ProfileFields{})
	assert.ErrorIs(t, err, storage.ErrInvalidProfile)

	assert.NotEqual(t, company.ID, person.ID)
}

func TestMemoryStore_RelationOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	relation, err := store.CreateRelation(ctx, "p1", "p2")
	require.NoError(t, err)

	again, err := store.CreateRelation(ctx, "p1", "p2")
	require.NoError(t, err)
	assert.Equal(t, relation.ID, again.ID)

	relations, err := store.ListRelations(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "p1", relations[0].Counterpart("p2"))

	relations, err = store.ListRelations(ctx, "p3")
	require.NoError(t, err)
	assert.Empty(t, relations)

	_, err = store.CreateRelation(ctx, "p1", "p1")
	assert.ErrorIs(t, err, storage.ErrInvalidRelation)
}

func TestMemoryStore_ConcurrentRelationCreation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			relation, err := store.CreateRelation(ctx, "sender", "recipient")
			if err == nil {
				ids[i] = relation.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	relations, err := store.ListRelations(ctx, "sender")
	require.NoError(t, err)
	assert.Len(t, relations, 1)
}

func TestMemoryStore_MessageOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	stored, err := store.CreateMessage(ctx, &domain.ChatMessage{
		FromProfileID: "p1",
		ToProfileID:   "p2",
		Data:          domain.MailContent{MessageID: "gmail-1", Subject: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gmail-1", stored.MessageID)

	messages := store.ListMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "p2", messages[0].ToProfileID)

	payload, ok := store.MessagePayload(stored.ID)
	require.True(t, ok)
	assert.Equal(t, "hi", payload.Subject)
}
