package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

func newTestUsers(t *testing.T, s *Memory) (*models.User, *models.User) {
	t.Helper()
	ctx := context.Background()

	alice, err := s.GetOrCreateUser(ctx, "uid-alice", "Alice", "alice@campus.edu")
	require.NoError(t, err)
	bob, err := s.GetOrCreateUser(ctx, "uid-bob", "Bob", "bob@campus.edu")
	require.NoError(t, err)
	return alice, bob
}

func TestGetOrCreateUserIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, "uid-1", "Alice", "alice@campus.edu")
	require.NoError(t, err)
	second, err := s.GetOrCreateUser(ctx, "uid-1", "Alice", "alice@campus.edu")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateConversationSamePair(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c1, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	// Reversed order must resolve to the same conversation.
	c2, err := s.GetOrCreateConversation(ctx, bob.ID, alice.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, c1.ID, c2.ID)
	assert.Len(t, c1.Participants, 2)
	assert.True(t, c1.HasParticipant(alice.ID))
	assert.True(t, c1.HasParticipant(bob.ID))
}

func TestCreateMessageUpdatesConversation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	msg := &models.Message{
		ConversationID: c.ID,
		SenderID:       &alice.ID,
		Text:           "is the bike still available?",
		Type:           models.MessageText,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	c, err = s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "is the bike still available?", c.LastMessage)
	require.NotNil(t, c.LastMessageAt)

	// Unread counter bumps for the recipient only.
	assert.Equal(t, 1, c.UnreadFor(bob.ID))
	assert.Equal(t, 0, c.UnreadFor(alice.ID))
}

func TestCreateMessagePreviewTruncation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	msg := &models.Message{
		ConversationID: c.ID,
		SenderID:       &alice.ID,
		Text:           long,
		Type:           models.MessageText,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	c, err = s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, long[:100]+"...", c.LastMessage)
}

func TestMarkConversationRead(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		msg := &models.Message{
			ConversationID: c.ID,
			SenderID:       &alice.ID,
			Text:           "hello",
			Type:           models.MessageText,
		}
		require.NoError(t, s.CreateMessage(ctx, msg))
	}

	require.NoError(t, s.MarkConversationRead(ctx, c.ID, bob.ID))

	c, err = s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.UnreadFor(bob.ID))

	msgs, err := s.ListMessages(ctx, c.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.True(t, m.ReadByUser(bob.ID))
		// The sender does not appear in their own message's read set.
		assert.False(t, m.ReadByUser(alice.ID))
	}
}

func TestMarkConversationReadIsIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	msg := &models.Message{
		ConversationID: c.ID,
		SenderID:       &alice.ID,
		Text:           "hey",
		Type:           models.MessageText,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	require.NoError(t, s.MarkConversationRead(ctx, c.ID, bob.ID))
	require.NoError(t, s.MarkConversationRead(ctx, c.ID, bob.ID))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, got.ReadBy, 1)
}

func TestEditMessage(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	msg := &models.Message{
		ConversationID: c.ID,
		SenderID:       &alice.ID,
		Text:           "selling my bkie",
		Type:           models.MessageText,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	now := time.Now().UTC()
	require.NoError(t, s.EditMessage(ctx, msg.ID, "selling my bike", now))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "selling my bike", got.Text)
	require.NotNil(t, got.EditedAt)
}

func TestEditDeletedMessageFails(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	msg := &models.Message{
		ConversationID: c.ID,
		SenderID:       &alice.ID,
		Text:           "oops",
		Type:           models.MessageText,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))
	require.NoError(t, s.SoftDeleteMessage(ctx, msg.ID))

	err = s.EditMessage(ctx, msg.ID, "changed", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotEditable)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeletedPlaceholder, got.Text)
	assert.Empty(t, got.Images)
	assert.True(t, got.IsDeleted)
}

func TestRemoveParticipantDeactivatesWhenEmpty(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)

	require.NoError(t, s.RemoveParticipant(ctx, c.ID, alice.ID))

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.False(t, got.HasParticipant(alice.ID))
	assert.True(t, got.HasParticipant(bob.ID))

	require.NoError(t, s.RemoveParticipant(ctx, c.ID, bob.ID))

	got, err = s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	list, err := s.ListUserConversations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetOrCreateConversationReadmitsDeparted(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	alice, bob := newTestUsers(t, s)

	c, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)
	require.NoError(t, s.RemoveParticipant(ctx, c.ID, alice.ID))

	// Starting the chat again puts alice back in the same record.
	again, err := s.GetOrCreateConversation(ctx, alice.ID, bob.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.True(t, again.HasParticipant(alice.ID))
	assert.True(t, again.HasParticipant(bob.ID))
	assert.Zero(t, again.UnreadFor(alice.ID))

	// Works even after both sides have left and the record went inactive.
	require.NoError(t, s.RemoveParticipant(ctx, c.ID, alice.ID))
	require.NoError(t, s.RemoveParticipant(ctx, c.ID, bob.ID))

	again, err = s.GetOrCreateConversation(ctx, bob.ID, alice.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.True(t, again.IsActive)
	assert.Len(t, again.Participants, 2)
}

func newTestPurchase(listingID, sellerID, buyerID uuid.UUID, ttl time.Duration) *models.PurchaseAttempt {
	return &models.PurchaseAttempt{
		ListingID:        listingID,
		SellerID:         sellerID,
		BuyerID:          buyerID,
		BuyerExternalUID: "uid-buyer",
		OTPHash:          "hash",
		OTPSalt:          "salt",
		ExpiresAt:        time.Now().UTC().Add(ttl),
	}
}

func TestPurchaseSupersedesPending(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seller, buyer := newTestUsers(t, s)

	listing := &models.Listing{SellerID: seller.ID, Title: "desk lamp", Price: 1500}
	require.NoError(t, s.CreateListing(ctx, listing))

	first := newTestPurchase(listing.ID, seller.ID, buyer.ID, 10*time.Minute)
	require.NoError(t, s.CreatePurchaseSupersedingPending(ctx, first))

	second := newTestPurchase(listing.ID, seller.ID, buyer.ID, 10*time.Minute)
	require.NoError(t, s.CreatePurchaseSupersedingPending(ctx, second))

	// Only the newest attempt is live.
	live, err := s.GetLivePendingPurchase(ctx, listing.ID, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, second.ID, live.ID)

	// Confirming the superseded attempt must not succeed.
	err = s.ConfirmPurchase(ctx, first.ID, listing.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestExpiredPurchaseNotLive(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seller, buyer := newTestUsers(t, s)

	listing := &models.Listing{SellerID: seller.ID, Title: "textbook", Price: 500}
	require.NoError(t, s.CreateListing(ctx, listing))

	p := newTestPurchase(listing.ID, seller.ID, buyer.ID, -time.Minute)
	require.NoError(t, s.CreatePurchaseSupersedingPending(ctx, p))

	live, err := s.GetLivePendingPurchase(ctx, listing.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, live)

	n, err := s.ExpireStalePurchases(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestConfirmPurchaseMarksListingSold(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	seller, buyer := newTestUsers(t, s)

	listing := &models.Listing{SellerID: seller.ID, Title: "mini fridge", Price: 4000}
	require.NoError(t, s.CreateListing(ctx, listing))

	p := newTestPurchase(listing.ID, seller.ID, buyer.ID, 10*time.Minute)
	require.NoError(t, s.CreatePurchaseSupersedingPending(ctx, p))

	require.NoError(t, s.ConfirmPurchase(ctx, p.ID, listing.ID))

	got, err := s.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSold)
	assert.False(t, got.IsActive)
	assert.False(t, got.Available())

	// Double confirmation is rejected.
	err = s.ConfirmPurchase(ctx, p.ID, listing.ID)
	assert.ErrorIs(t, err, ErrConflict)

	// Sold listings disappear from the active feed.
	list, err := s.ListListings(ctx, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
