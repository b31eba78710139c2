package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const pgSchema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	external_uid TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	avatar TEXT NOT NULL DEFAULT '',
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS listings (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	seller_id UUID NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	price BIGINT NOT NULL,
	images TEXT[] NOT NULL DEFAULT '{}',
	category TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_sold BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- The participant pair is stored in canonical order so the unique
-- constraint makes conversation creation idempotent per unordered pair.
CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	participant_lo UUID NOT NULL REFERENCES users(id),
	participant_hi UUID NOT NULL REFERENCES users(id),
	listing_id UUID REFERENCES listings(id),
	last_message TEXT NOT NULL DEFAULT '',
	last_message_at TIMESTAMPTZ,
	last_message_sender_id UUID,
	unread_lo INT NOT NULL DEFAULT 0,
	unread_hi INT NOT NULL DEFAULT 0,
	removed_lo BOOLEAN NOT NULL DEFAULT FALSE,
	removed_hi BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (participant_lo, participant_hi)
);

CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id UUID REFERENCES users(id),
	text TEXT NOT NULL DEFAULT '',
	images TEXT[] NOT NULL DEFAULT '{}',
	type TEXT NOT NULL DEFAULT 'text',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	read_by UUID[] NOT NULL DEFAULT '{}',
	read_at TIMESTAMPTZ,
	edited_at TIMESTAMPTZ,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS purchases (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	listing_id UUID NOT NULL REFERENCES listings(id),
	seller_id UUID NOT NULL REFERENCES users(id),
	buyer_id UUID NOT NULL REFERENCES users(id),
	buyer_external_uid TEXT NOT NULL,
	otp_hash TEXT NOT NULL,
	otp_salt TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active, created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_purchases_listing_status ON purchases(listing_id, status);
CREATE INDEX IF NOT EXISTS idx_purchases_expires ON purchases(expires_at);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, pgSchema)
	return err
}
