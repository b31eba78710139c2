package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

// SQLiteStore is the development fallback store. It mirrors PostgresStore
// behind the DataStore interface; arrays are stored as JSON text and UUIDs
// as their string form.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/resale.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/resale.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// SQLite is single-writer; one connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_uid TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price INTEGER NOT NULL,
		images TEXT NOT NULL DEFAULT '[]',
		category TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_sold INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participant_lo TEXT NOT NULL,
		participant_hi TEXT NOT NULL,
		listing_id TEXT,
		last_message TEXT NOT NULL DEFAULT '',
		last_message_at DATETIME,
		last_message_sender_id TEXT,
		unread_lo INTEGER NOT NULL DEFAULT 0,
		unread_hi INTEGER NOT NULL DEFAULT 0,
		removed_lo INTEGER NOT NULL DEFAULT 0,
		removed_hi INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (participant_lo, participant_hi)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT,
		text TEXT NOT NULL DEFAULT '',
		images TEXT NOT NULL DEFAULT '[]',
		type TEXT NOT NULL DEFAULT 'text',
		is_read INTEGER NOT NULL DEFAULT 0,
		read_by TEXT NOT NULL DEFAULT '[]',
		read_at DATETIME,
		edited_at DATETIME,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		buyer_external_uid TEXT NOT NULL,
		otp_hash TEXT NOT NULL,
		otp_salt TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_purchases_listing_status ON purchases(listing_id, status);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func marshalJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(raw string) []string {
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	if out == nil {
		out = []string{}
	}
	return out
}

func unmarshalUUIDs(raw string) []uuid.UUID {
	var out []uuid.UUID
	_ = json.Unmarshal([]byte(raw), &out)
	if out == nil {
		out = []uuid.UUID{}
	}
	return out
}

func nullUUIDArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseNullUUID(s sql.NullString) *uuid.UUID {
	if !s.Valid {
		return nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil
	}
	return &id
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// GetOrCreateUser resolves an external auth UID to the internal user,
// creating the record on first contact.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, externalUID, name, email string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, external_uid, name, email, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (external_uid) DO NOTHING
	`, uuid.New().String(), externalUID, name, email, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	user := &models.User{}
	var id string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, external_uid, name, email, avatar, is_admin, created_at
		FROM users WHERE external_uid = ?
	`, externalUID).Scan(
		&id, &user.ExternalUID, &user.Name, &user.Email,
		&user.Avatar, &user.IsAdmin, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by internal ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT external_uid, name, email, avatar, is_admin, created_at
		FROM users WHERE id = ?
	`, id.String()).Scan(
		&user.ExternalUID, &user.Name, &user.Email,
		&user.Avatar, &user.IsAdmin, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateListing creates a new listing.
func (s *SQLiteStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.Images == nil {
		l.Images = []string{}
	}
	l.ID = uuid.New()
	l.IsActive = true
	l.IsSold = false
	l.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, seller_id, title, price, images, category, is_active, is_sold, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, 0, ?)
	`, l.ID.String(), l.SellerID.String(), l.Title, l.Price,
		marshalJSON(l.Images), l.Category, l.CreatedAt)
	return err
}

func scanSQLiteListing(row rowScanner) (*models.Listing, error) {
	var (
		l          models.Listing
		id, seller string
		images     string
	)
	err := row.Scan(&id, &seller, &l.Title, &l.Price, &images,
		&l.Category, &l.IsActive, &l.IsSold, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if l.SellerID, err = uuid.Parse(seller); err != nil {
		return nil, err
	}
	l.Images = unmarshalStrings(images)
	return &l, nil
}

// GetListing retrieves a listing by ID.
func (s *SQLiteStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seller_id, title, price, images, category, is_active, is_sold, created_at
		FROM listings WHERE id = ?
	`, id.String())
	l, err := scanSQLiteListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// ListListings retrieves active listings, newest first.
func (s *SQLiteStore) ListListings(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seller_id, title, price, images, category, is_active, is_sold, created_at
		FROM listings WHERE is_active = 1
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func scanSQLiteConversation(row rowScanner) (*models.Conversation, error) {
	var (
		c                    models.Conversation
		id, lo, hi           string
		listingID, senderID  sql.NullString
		lastMessageAt        sql.NullTime
		unreadLo, unreadHi   int
		removedLo, removedHi bool
	)
	err := row.Scan(
		&id, &lo, &hi, &listingID,
		&c.LastMessage, &lastMessageAt, &senderID,
		&unreadLo, &unreadHi, &removedLo, &removedHi,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	loID, err := uuid.Parse(lo)
	if err != nil {
		return nil, err
	}
	hiID, err := uuid.Parse(hi)
	if err != nil {
		return nil, err
	}
	c.ListingID = parseNullUUID(listingID)
	c.LastMessageSenderID = parseNullUUID(senderID)
	c.LastMessageAt = nullTimePtr(lastMessageAt)

	c.UnreadCount = map[string]int{}
	if !removedLo {
		c.Participants = append(c.Participants, loID)
		c.UnreadCount[loID.String()] = unreadLo
	}
	if !removedHi {
		c.Participants = append(c.Participants, hiID)
		c.UnreadCount[hiID.String()] = unreadHi
	}
	return &c, nil
}

const sqliteConversationColumns = `
	id, participant_lo, participant_hi, listing_id,
	last_message, last_message_at, last_message_sender_id,
	unread_lo, unread_hi, removed_lo, removed_hi,
	is_active, created_at, updated_at`

// GetOrCreateConversation returns the conversation for the unordered pair
// (a, b), creating it on first contact. Departed participants are
// re-admitted with a cleared unread counter, so leaving never strands the
// pair.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID, listingID *uuid.UUID) (*models.Conversation, error) {
	lo, hi := models.OrderedPair(a, b)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_lo, participant_hi, listing_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_lo, participant_hi) DO NOTHING
	`, uuid.New().String(), lo.String(), hi.String(), nullUUIDArg(listingID), now, now)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET
			unread_lo = CASE WHEN removed_lo THEN 0 ELSE unread_lo END,
			unread_hi = CASE WHEN removed_hi THEN 0 ELSE unread_hi END,
			removed_lo = 0,
			removed_hi = 0,
			is_active = 1,
			updated_at = ?3
		WHERE participant_lo = ?1 AND participant_hi = ?2
		  AND (removed_lo OR removed_hi)
	`, lo.String(), hi.String(), now)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteConversationColumns+`
		FROM conversations
		WHERE participant_lo = ? AND participant_hi = ?
	`, lo.String(), hi.String())
	return scanSQLiteConversation(row)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteConversationColumns+`
		FROM conversations WHERE id = ?
	`, id.String())
	c, err := scanSQLiteConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListUserConversations retrieves the active conversations userID still
// participates in, most recent activity first.
func (s *SQLiteStore) ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteConversationColumns+`
		FROM conversations
		WHERE is_active = 1
		  AND ((participant_lo = ?1 AND removed_lo = 0)
		    OR (participant_hi = ?1 AND removed_hi = 0))
		ORDER BY last_message_at DESC, created_at DESC
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		c, err := scanSQLiteConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}

// RemoveParticipant drops userID from the conversation and deactivates the
// record once nobody is left.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET
			removed_lo = removed_lo OR participant_lo = ?2,
			removed_hi = removed_hi OR participant_hi = ?2,
			unread_lo = CASE WHEN participant_lo = ?2 THEN 0 ELSE unread_lo END,
			unread_hi = CASE WHEN participant_hi = ?2 THEN 0 ELSE unread_hi END,
			updated_at = ?3
		WHERE id = ?1
	`, conversationID.String(), userID.String(), time.Now().UTC())
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET is_active = 0
		WHERE id = ? AND removed_lo AND removed_hi
	`, conversationID.String())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// CreateMessage inserts the message and updates the conversation summary
// and unread counters in the same transaction.
func (s *SQLiteStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Images == nil {
		m.Images = []string{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []uuid.UUID{}
	}
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var senderArg any
	if m.SenderID != nil {
		senderArg = m.SenderID.String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text, images, type, read_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.ConversationID.String(), senderArg, m.Text,
		marshalJSON(m.Images), string(m.Type), marshalJSON(m.ReadBy), m.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET
			last_message = ?2,
			last_message_at = ?3,
			last_message_sender_id = ?4,
			unread_lo = unread_lo + (CASE WHEN participant_lo = ?4 THEN 0 ELSE 1 END),
			unread_hi = unread_hi + (CASE WHEN participant_hi = ?4 THEN 0 ELSE 1 END),
			updated_at = ?3
		WHERE id = ?1
	`, m.ConversationID.String(), messagePreview(m), m.CreatedAt, senderArg)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func scanSQLiteMessage(row rowScanner) (*models.Message, error) {
	var (
		m                models.Message
		id, conversation string
		sender           sql.NullString
		images, readBy   string
		msgType          string
		readAt, editedAt sql.NullTime
	)
	err := row.Scan(
		&id, &conversation, &sender, &m.Text, &images, &msgType,
		&m.IsRead, &readBy, &readAt, &editedAt, &m.IsDeleted, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if m.ConversationID, err = uuid.Parse(conversation); err != nil {
		return nil, err
	}
	m.SenderID = parseNullUUID(sender)
	m.Images = unmarshalStrings(images)
	m.ReadBy = unmarshalUUIDs(readBy)
	m.Type = models.MessageType(msgType)
	m.ReadAt = nullTimePtr(readAt)
	m.EditedAt = nullTimePtr(editedAt)
	return &m, nil
}

const sqliteMessageColumns = `
	id, conversation_id, sender_id, text, images, type,
	is_read, read_by, read_at, edited_at, is_deleted, created_at`

// ListMessages retrieves messages from a conversation, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, conversationID.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages WHERE id = ?
	`, id.String())
	m, err := scanSQLiteMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// EditMessage replaces the text of a text message.
func (s *SQLiteStore) EditMessage(ctx context.Context, id uuid.UUID, text string, editedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET text = ?2, edited_at = ?3
		WHERE id = ?1 AND type = 'text' AND is_deleted = 0
	`, id.String(), text, editedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotEditable
	}
	return nil
}

// SoftDeleteMessage replaces the message content with the placeholder.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1, text = ?2, images = '[]'
		WHERE id = ?1 AND is_deleted = 0
	`, id.String(), models.DeletedPlaceholder)
	return err
}

// MarkConversationRead acknowledges every unread message not authored by
// reader, then resets reader's unread counter.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// SQLite has no array type; update read_by per message inside the tx.
	rows, err := tx.QueryContext(ctx, `
		SELECT id, read_by FROM messages
		WHERE conversation_id = ?1
		  AND (sender_id IS NULL OR sender_id <> ?2)
		  AND is_deleted = 0
	`, conversationID.String(), readerID.String())
	if err != nil {
		return err
	}

	type pending struct {
		id     string
		readBy []uuid.UUID
	}
	var updates []pending
	for rows.Next() {
		var id, readByRaw string
		if err := rows.Scan(&id, &readByRaw); err != nil {
			rows.Close()
			return err
		}
		readBy := unmarshalUUIDs(readByRaw)
		already := false
		for _, u := range readBy {
			if u == readerID {
				already = true
				break
			}
		}
		if !already {
			updates = append(updates, pending{id: id, readBy: append(readBy, readerID)})
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, u := range updates {
		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET
				read_by = ?2,
				is_read = 1,
				read_at = COALESCE(read_at, ?3)
			WHERE id = ?1
		`, u.id, marshalJSON(u.readBy), now)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET
			unread_lo = CASE WHEN participant_lo = ?2 THEN 0 ELSE unread_lo END,
			unread_hi = CASE WHEN participant_hi = ?2 THEN 0 ELSE unread_hi END,
			updated_at = ?3
		WHERE id = ?1
	`, conversationID.String(), readerID.String(), now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// CreatePurchaseSupersedingPending cancels any pending attempt for the same
// (listing, buyer) pair and inserts the new attempt in one transaction.
func (s *SQLiteStore) CreatePurchaseSupersedingPending(ctx context.Context, p *models.PurchaseAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE purchases SET status = 'cancelled'
		WHERE listing_id = ? AND buyer_id = ? AND status = 'pending'
	`, p.ListingID.String(), p.BuyerID.String())
	if err != nil {
		return err
	}

	p.ID = uuid.New()
	p.Status = models.PurchasePending
	p.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, listing_id, seller_id, buyer_id, buyer_external_uid,
			otp_hash, otp_salt, expires_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)
	`, p.ID.String(), p.ListingID.String(), p.SellerID.String(), p.BuyerID.String(),
		p.BuyerExternalUID, p.OTPHash, p.OTPSalt, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetLivePendingPurchase selects the newest pending attempt for the listing
// whose expiry is still in the future.
func (s *SQLiteStore) GetLivePendingPurchase(ctx context.Context, listingID uuid.UUID, now time.Time) (*models.PurchaseAttempt, error) {
	p := &models.PurchaseAttempt{}
	var id, listing, seller, buyer, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, listing_id, seller_id, buyer_id, buyer_external_uid,
			otp_hash, otp_salt, expires_at, status, created_at
		FROM purchases
		WHERE listing_id = ? AND status = 'pending' AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`, listingID.String(), now).Scan(
		&id, &listing, &seller, &buyer, &p.BuyerExternalUID,
		&p.OTPHash, &p.OTPSalt, &p.ExpiresAt, &status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if p.ListingID, err = uuid.Parse(listing); err != nil {
		return nil, err
	}
	if p.SellerID, err = uuid.Parse(seller); err != nil {
		return nil, err
	}
	if p.BuyerID, err = uuid.Parse(buyer); err != nil {
		return nil, err
	}
	p.Status = models.PurchaseStatus(status)
	return p, nil
}

// ConfirmPurchase marks the attempt confirmed and the listing sold and
// inactive as one transaction.
func (s *SQLiteStore) ConfirmPurchase(ctx context.Context, purchaseID, listingID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE purchases SET status = 'confirmed'
		WHERE id = ? AND status = 'pending'
	`, purchaseID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE listings SET is_sold = 1, is_active = 0 WHERE id = ?
	`, listingID.String())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ExpireStalePurchases transitions pending attempts past their deadline to
// expired.
func (s *SQLiteStore) ExpireStalePurchases(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= ?
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
