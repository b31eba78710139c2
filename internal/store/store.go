package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

var (
	// ErrConflict signals that a conditional update hit a row no longer in
	// the expected state (e.g. confirming an attempt that was superseded).
	ErrConflict = errors.New("store: conflicting concurrent update")

	// ErrNotEditable signals a message edit outside the allowed rules.
	ErrNotEditable = errors.New("store: message not editable")
)

// messagePreview is the summary written onto the conversation when a
// message lands, clamped to the conversation preview cap.
func messagePreview(m *models.Message) string {
	p := m.Preview()
	if len(p) > models.PreviewLength {
		p = p[:models.PreviewLength]
	}
	return p
}

// DataStore is the durable source of truth for users, listings,
// conversations, messages, and purchase attempts. PostgresStore,
// SQLiteStore, and Memory all implement this interface. Methods that read
// a single entity return (nil, nil) when it does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User directory
	GetOrCreateUser(ctx context.Context, externalUID, name, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Listing collaborator operations
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListListings(ctx context.Context, limit, offset int) ([]models.Listing, error)

	// Conversations
	GetOrCreateConversation(ctx context.Context, a, b uuid.UUID, listingID *uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error

	// Messages. CreateMessage persists the message and, in the same atomic
	// unit, updates the conversation's last-message preview and bumps the
	// unread counter of every participant except the sender.
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	EditMessage(ctx context.Context, id uuid.UUID, text string, editedAt time.Time) error
	SoftDeleteMessage(ctx context.Context, id uuid.UUID) error

	// MarkConversationRead acknowledges, in one atomic update, every
	// not-yet-read message in the conversation authored by someone other
	// than reader, and resets reader's unread counter.
	MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) error

	// Purchase attempts. CreatePurchaseSupersedingPending cancels any
	// pending attempt for the same (listing, buyer) pair and inserts the
	// new one as a single transaction, so two concurrent initiations
	// cannot both stay live.
	CreatePurchaseSupersedingPending(ctx context.Context, p *models.PurchaseAttempt) error

	// GetLivePendingPurchase selects the newest pending attempt for the
	// listing whose expiry is still in the future. Expiry is enforced here,
	// at read time, independent of the background sweep.
	GetLivePendingPurchase(ctx context.Context, listingID uuid.UUID, now time.Time) (*models.PurchaseAttempt, error)

	// ConfirmPurchase transitions the attempt to confirmed and the listing
	// to sold+inactive in one transaction. Returns ErrConflict if the
	// attempt is no longer pending.
	ConfirmPurchase(ctx context.Context, purchaseID, listingID uuid.UUID) error

	// ExpireStalePurchases marks pending attempts past their deadline as
	// expired and reports how many rows changed.
	ExpireStalePurchases(ctx context.Context, now time.Time) (int64, error)
}
