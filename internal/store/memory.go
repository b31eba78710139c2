package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

// Memory is an in-memory DataStore with the same semantics as the SQL
// implementations. It backs tests and can run the server without any
// database attached.
type Memory struct {
	mu sync.RWMutex

	users         map[uuid.UUID]*models.User
	usersByUID    map[string]uuid.UUID
	listings      map[uuid.UUID]*models.Listing
	conversations map[uuid.UUID]*memConversation
	pairs         map[pairKey]uuid.UUID
	messages      map[uuid.UUID]*models.Message
	purchases     map[uuid.UUID]*models.PurchaseAttempt
}

type pairKey struct {
	lo, hi uuid.UUID
}

// memConversation keeps the canonical-pair bookkeeping the SQL stores hold
// in columns.
type memConversation struct {
	id                  uuid.UUID
	lo, hi              uuid.UUID
	listingID           *uuid.UUID
	lastMessage         string
	lastMessageAt       *time.Time
	lastMessageSenderID *uuid.UUID
	unreadLo, unreadHi  int
	removedLo           bool
	removedHi           bool
	isActive            bool
	createdAt           time.Time
	updatedAt           time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:         map[uuid.UUID]*models.User{},
		usersByUID:    map[string]uuid.UUID{},
		listings:      map[uuid.UUID]*models.Listing{},
		conversations: map[uuid.UUID]*memConversation{},
		pairs:         map[pairKey]uuid.UUID{},
		messages:      map[uuid.UUID]*models.Message{},
		purchases:     map[uuid.UUID]*models.PurchaseAttempt{},
	}
}

// Close is a no-op.
func (s *Memory) Close() {}

// Ping always succeeds.
func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) GetOrCreateUser(ctx context.Context, externalUID, name, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usersByUID[externalUID]; ok {
		u := *s.users[id]
		return &u, nil
	}
	u := &models.User{
		ID:          uuid.New(),
		ExternalUID: externalUID,
		Name:        name,
		Email:       email,
		CreatedAt:   time.Now().UTC(),
	}
	s.users[u.ID] = u
	s.usersByUID[externalUID] = u.ID
	out := *u
	return &out, nil
}

func (s *Memory) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (s *Memory) CreateListing(ctx context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.Images == nil {
		l.Images = []string{}
	}
	l.ID = uuid.New()
	l.IsActive = true
	l.IsSold = false
	l.CreatedAt = time.Now().UTC()

	cp := *l
	s.listings[l.ID] = &cp
	return nil
}

func (s *Memory) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, nil
	}
	out := *l
	return &out, nil
}

func (s *Memory) ListListings(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Listing
	for _, l := range s.listings {
		if l.IsActive {
			all = append(all, *l)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Memory) conversationModel(c *memConversation) *models.Conversation {
	out := &models.Conversation{
		ID:                  c.id,
		ListingID:           c.listingID,
		LastMessage:         c.lastMessage,
		LastMessageAt:       c.lastMessageAt,
		LastMessageSenderID: c.lastMessageSenderID,
		UnreadCount:         map[string]int{},
		IsActive:            c.isActive,
		CreatedAt:           c.createdAt,
		UpdatedAt:           c.updatedAt,
	}
	if !c.removedLo {
		out.Participants = append(out.Participants, c.lo)
		out.UnreadCount[c.lo.String()] = c.unreadLo
	}
	if !c.removedHi {
		out.Participants = append(out.Participants, c.hi)
		out.UnreadCount[c.hi.String()] = c.unreadHi
	}
	return out
}

func (s *Memory) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID, listingID *uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := models.OrderedPair(a, b)
	key := pairKey{lo: lo, hi: hi}

	if id, ok := s.pairs[key]; ok {
		c := s.conversations[id]
		// Starting a chat re-admits departed participants, mirroring a
		// fresh chat between the pair.
		if c.removedLo || c.removedHi {
			if c.removedLo {
				c.removedLo = false
				c.unreadLo = 0
			}
			if c.removedHi {
				c.removedHi = false
				c.unreadHi = 0
			}
			c.isActive = true
			c.updatedAt = time.Now().UTC()
		}
		return s.conversationModel(c), nil
	}

	now := time.Now().UTC()
	c := &memConversation{
		id:        uuid.New(),
		lo:        lo,
		hi:        hi,
		listingID: listingID,
		isActive:  true,
		createdAt: now,
		updatedAt: now,
	}
	s.conversations[c.id] = c
	s.pairs[key] = c.id
	return s.conversationModel(c), nil
}

func (s *Memory) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return s.conversationModel(c), nil
}

func (s *Memory) ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Conversation
	for _, c := range s.conversations {
		if !c.isActive {
			continue
		}
		if (c.lo == userID && !c.removedLo) || (c.hi == userID && !c.removedHi) {
			out = append(out, *s.conversationModel(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if out[i].LastMessageAt != nil {
			ti = *out[i].LastMessageAt
		}
		if out[j].LastMessageAt != nil {
			tj = *out[j].LastMessageAt
		}
		return ti.After(tj)
	})
	return out, nil
}

func (s *Memory) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	if c.lo == userID {
		c.removedLo = true
		c.unreadLo = 0
	}
	if c.hi == userID {
		c.removedHi = true
		c.unreadHi = 0
	}
	if c.removedLo && c.removedHi {
		c.isActive = false
	}
	c.updatedAt = time.Now().UTC()
	return nil
}

func (s *Memory) CreateMessage(ctx context.Context, m *models.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Images == nil {
		m.Images = []string{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []uuid.UUID{}
	}
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()

	cp := *m
	s.messages[m.ID] = &cp

	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return nil
	}
	c.lastMessage = messagePreview(m)
	t := m.CreatedAt
	c.lastMessageAt = &t
	c.lastMessageSenderID = m.SenderID
	if m.SenderID == nil || *m.SenderID != c.lo {
		c.unreadLo++
	}
	if m.SenderID == nil || *m.SenderID != c.hi {
		c.unreadHi++
	}
	c.updatedAt = t
	return nil
}

func (s *Memory) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			all = append(all, *m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Memory) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

func (s *Memory) EditMessage(ctx context.Context, id uuid.UUID, text string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.Type != models.MessageText || m.IsDeleted {
		return ErrNotEditable
	}
	m.Text = text
	t := editedAt
	m.EditedAt = &t
	return nil
}

func (s *Memory) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return nil
	}
	m.IsDeleted = true
	m.Text = models.DeletedPlaceholder
	m.Images = []string{}
	return nil
}

func (s *Memory) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, m := range s.messages {
		if m.ConversationID != conversationID || m.IsDeleted {
			continue
		}
		if m.SenderID != nil && *m.SenderID == readerID {
			continue
		}
		if m.ReadByUser(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, readerID)
		m.IsRead = true
		if m.ReadAt == nil {
			t := now
			m.ReadAt = &t
		}
	}

	if c, ok := s.conversations[conversationID]; ok {
		if c.lo == readerID {
			c.unreadLo = 0
		}
		if c.hi == readerID {
			c.unreadHi = 0
		}
		c.updatedAt = now
	}
	return nil
}

func (s *Memory) CreatePurchaseSupersedingPending(ctx context.Context, p *models.PurchaseAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.purchases {
		if existing.ListingID == p.ListingID && existing.BuyerID == p.BuyerID &&
			existing.Status == models.PurchasePending {
			existing.Status = models.PurchaseCancelled
		}
	}

	p.ID = uuid.New()
	p.Status = models.PurchasePending
	p.CreatedAt = time.Now().UTC()

	cp := *p
	s.purchases[p.ID] = &cp
	return nil
}

func (s *Memory) GetLivePendingPurchase(ctx context.Context, listingID uuid.UUID, now time.Time) (*models.PurchaseAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.PurchaseAttempt
	for _, p := range s.purchases {
		if p.ListingID != listingID || !p.Live(now) {
			continue
		}
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	if newest == nil {
		return nil, nil
	}
	out := *newest
	return &out, nil
}

func (s *Memory) ConfirmPurchase(ctx context.Context, purchaseID, listingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[purchaseID]
	if !ok || p.Status != models.PurchasePending {
		return ErrConflict
	}
	p.Status = models.PurchaseConfirmed

	if l, ok := s.listings[listingID]; ok {
		l.IsSold = true
		l.IsActive = false
	}
	return nil
}

func (s *Memory) ExpireStalePurchases(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.purchases {
		if p.Status == models.PurchasePending && !p.ExpiresAt.After(now) {
			p.Status = models.PurchaseExpired
			n++
		}
	}
	return n, nil
}
