package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetOrCreateUser resolves an external auth UID to the internal user,
// creating the record on first contact.
func (s *PostgresStore) GetOrCreateUser(ctx context.Context, externalUID, name, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (external_uid, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_uid) DO UPDATE SET external_uid = EXCLUDED.external_uid
		RETURNING id, external_uid, name, email, avatar, is_admin, created_at
	`, externalUID, name, email).Scan(
		&user.ID,
		&user.ExternalUID,
		&user.Name,
		&user.Email,
		&user.Avatar,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by internal ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, external_uid, name, email, avatar, is_admin, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.ExternalUID,
		&user.Name,
		&user.Email,
		&user.Avatar,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateListing creates a new listing.
func (s *PostgresStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.Images == nil {
		l.Images = []string{}
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO listings (seller_id, title, price, images, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, is_sold, created_at
	`, l.SellerID, l.Title, l.Price, l.Images, l.Category).Scan(
		&l.ID,
		&l.IsActive,
		&l.IsSold,
		&l.CreatedAt,
	)
}

// GetListing retrieves a listing by ID.
func (s *PostgresStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	l := &models.Listing{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, seller_id, title, price, images, category, is_active, is_sold, created_at
		FROM listings WHERE id = $1
	`, id).Scan(
		&l.ID,
		&l.SellerID,
		&l.Title,
		&l.Price,
		&l.Images,
		&l.Category,
		&l.IsActive,
		&l.IsSold,
		&l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// ListListings retrieves active listings, newest first.
func (s *PostgresStore) ListListings(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, seller_id, title, price, images, category, is_active, is_sold, created_at
		FROM listings
		WHERE is_active = TRUE
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		err := rows.Scan(
			&l.ID,
			&l.SellerID,
			&l.Title,
			&l.Price,
			&l.Images,
			&l.Category,
			&l.IsActive,
			&l.IsSold,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

const conversationColumns = `
	id, participant_lo, participant_hi, listing_id,
	last_message, last_message_at, last_message_sender_id,
	unread_lo, unread_hi, removed_lo, removed_hi,
	is_active, created_at, updated_at`

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		c          models.Conversation
		lo, hi     uuid.UUID
		unreadLo   int
		unreadHi   int
		removedLo  bool
		removedHi  bool
	)
	err := row.Scan(
		&c.ID, &lo, &hi, &c.ListingID,
		&c.LastMessage, &c.LastMessageAt, &c.LastMessageSenderID,
		&unreadLo, &unreadHi, &removedLo, &removedHi,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.UnreadCount = map[string]int{}
	if !removedLo {
		c.Participants = append(c.Participants, lo)
		c.UnreadCount[lo.String()] = unreadLo
	}
	if !removedHi {
		c.Participants = append(c.Participants, hi)
		c.UnreadCount[hi.String()] = unreadHi
	}
	return &c, nil
}

// GetOrCreateConversation returns the conversation for the unordered pair
// (a, b), creating it on first contact. A second request for the same pair
// returns the existing record; departed participants are re-admitted with a
// cleared unread counter, so leaving never strands the pair.
func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID, listingID *uuid.UUID) (*models.Conversation, error) {
	lo, hi := models.OrderedPair(a, b)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (participant_lo, participant_hi, listing_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (participant_lo, participant_hi) DO NOTHING
	`, lo, hi, listingID)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE conversations SET
			unread_lo = CASE WHEN removed_lo THEN 0 ELSE unread_lo END,
			unread_hi = CASE WHEN removed_hi THEN 0 ELSE unread_hi END,
			removed_lo = FALSE,
			removed_hi = FALSE,
			is_active = TRUE,
			updated_at = NOW()
		WHERE participant_lo = $1 AND participant_hi = $2
		  AND (removed_lo OR removed_hi)
	`, lo, hi)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participant_lo = $1 AND participant_hi = $2
	`, lo, hi)
	return scanConversation(row)
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1
	`, id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListUserConversations retrieves the active conversations userID still
// participates in, most recent activity first.
func (s *PostgresStore) ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE is_active = TRUE
		  AND ((participant_lo = $1 AND NOT removed_lo)
		    OR (participant_hi = $1 AND NOT removed_hi))
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}

// RemoveParticipant drops userID from the conversation and deactivates the
// record once nobody is left.
func (s *PostgresStore) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET
			removed_lo = removed_lo OR participant_lo = $2,
			removed_hi = removed_hi OR participant_hi = $2,
			unread_lo = CASE WHEN participant_lo = $2 THEN 0 ELSE unread_lo END,
			unread_hi = CASE WHEN participant_hi = $2 THEN 0 ELSE unread_hi END,
			updated_at = NOW()
		WHERE id = $1
	`, conversationID, userID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET is_active = FALSE
		WHERE id = $1 AND removed_lo AND removed_hi
	`, conversationID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreateMessage inserts the message and updates the conversation's
// last-message summary and unread counters in the same transaction. System
// messages (nil sender) count as unread for both participants.
func (s *PostgresStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Images == nil {
		m.Images = []string{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []uuid.UUID{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, text, images, type, read_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, m.ConversationID, m.SenderID, m.Text, m.Images, string(m.Type), m.ReadBy).Scan(
		&m.ID, &m.CreatedAt,
	)
	if err != nil {
		return err
	}

	// NULL sender never equals a participant column, so the CASE falls
	// through to +1 for both sides on system messages.
	_, err = tx.Exec(ctx, `
		UPDATE conversations SET
			last_message = $2,
			last_message_at = $3,
			last_message_sender_id = $4,
			unread_lo = unread_lo + CASE WHEN participant_lo = $4 THEN 0 ELSE 1 END,
			unread_hi = unread_hi + CASE WHEN participant_hi = $4 THEN 0 ELSE 1 END,
			updated_at = NOW()
		WHERE id = $1
	`, m.ConversationID, messagePreview(m), m.CreatedAt, m.SenderID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const messageColumns = `
	id, conversation_id, sender_id, text, images, type,
	is_read, read_by, read_at, edited_at, is_deleted, created_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m       models.Message
		msgType string
	)
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Images, &msgType,
		&m.IsRead, &m.ReadBy, &m.ReadAt, &m.EditedAt, &m.IsDeleted, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = models.MessageType(msgType)
	return &m, nil
}

// ListMessages retrieves messages from a conversation, newest first.
// Soft-deleted messages are returned with their placeholder content.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE id = $1
	`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// EditMessage replaces the text of a text message. Ownership and the grace
// window are checked by the caller against the loaded message.
func (s *PostgresStore) EditMessage(ctx context.Context, id uuid.UUID, text string, editedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET text = $2, edited_at = $3
		WHERE id = $1 AND type = 'text' AND is_deleted = FALSE
	`, id, text, editedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotEditable
	}
	return nil
}

// SoftDeleteMessage replaces the message content with the placeholder and
// discards the original body and attachments.
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET is_deleted = TRUE, text = $2, images = '{}'
		WHERE id = $1 AND is_deleted = FALSE
	`, id, models.DeletedPlaceholder)
	return err
}

// MarkConversationRead acknowledges every unread message not authored by
// reader in one update, then resets reader's unread counter.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE messages SET
			read_by = array_append(read_by, $2::uuid),
			is_read = TRUE,
			read_at = COALESCE(read_at, NOW())
		WHERE conversation_id = $1
		  AND (sender_id IS NULL OR sender_id <> $2)
		  AND NOT (read_by @> ARRAY[$2]::uuid[])
		  AND is_deleted = FALSE
	`, conversationID, readerID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET
			unread_lo = CASE WHEN participant_lo = $2 THEN 0 ELSE unread_lo END,
			unread_hi = CASE WHEN participant_hi = $2 THEN 0 ELSE unread_hi END,
			updated_at = NOW()
		WHERE id = $1
	`, conversationID, readerID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreatePurchaseSupersedingPending cancels any pending attempt for the same
// (listing, buyer) pair and inserts the new attempt in one transaction.
func (s *PostgresStore) CreatePurchaseSupersedingPending(ctx context.Context, p *models.PurchaseAttempt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE purchases SET status = 'cancelled'
		WHERE listing_id = $1 AND buyer_id = $2 AND status = 'pending'
	`, p.ListingID, p.BuyerID)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO purchases (listing_id, seller_id, buyer_id, buyer_external_uid,
			otp_hash, otp_salt, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id, created_at
	`, p.ListingID, p.SellerID, p.BuyerID, p.BuyerExternalUID,
		p.OTPHash, p.OTPSalt, p.ExpiresAt).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return err
	}
	p.Status = models.PurchasePending

	return tx.Commit(ctx)
}

const purchaseColumns = `
	id, listing_id, seller_id, buyer_id, buyer_external_uid,
	otp_hash, otp_salt, expires_at, status, created_at`

// GetLivePendingPurchase selects the newest pending attempt for the listing
// whose expiry is still in the future.
func (s *PostgresStore) GetLivePendingPurchase(ctx context.Context, listingID uuid.UUID, now time.Time) (*models.PurchaseAttempt, error) {
	p := &models.PurchaseAttempt{}
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE listing_id = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, listingID, now).Scan(
		&p.ID, &p.ListingID, &p.SellerID, &p.BuyerID, &p.BuyerExternalUID,
		&p.OTPHash, &p.OTPSalt, &p.ExpiresAt, &status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Status = models.PurchaseStatus(status)
	return p, nil
}

// ConfirmPurchase marks the attempt confirmed and the listing sold and
// inactive as one transaction, so no intermediate state is observable.
func (s *PostgresStore) ConfirmPurchase(ctx context.Context, purchaseID, listingID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE purchases SET status = 'confirmed'
		WHERE id = $1 AND status = 'pending'
	`, purchaseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE listings SET is_sold = TRUE, is_active = FALSE
		WHERE id = $1
	`, listingID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ExpireStalePurchases transitions pending attempts past their deadline to
// expired. Readers already ignore stale attempts; this keeps the table tidy.
func (s *PostgresStore) ExpireStalePurchases(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE purchases SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
