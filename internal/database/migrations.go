package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    email TEXT NOT NULL,
    imap_host TEXT NOT NULL,
    imap_port INTEGER NOT NULL DEFAULT 993,
    secret TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT 'custom',
    is_active BOOLEAN DEFAULT true,
    auth_failed BOOLEAN DEFAULT false,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, email)
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    fingerprint TEXT NOT NULL,
    subject TEXT,
    sender TEXT,
    body TEXT,
    category TEXT,
    confidence REAL,
    received_at DATETIME,
    synced_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    outcome TEXT NOT NULL,
    error TEXT,
    seen INTEGER DEFAULT 0,
    stored INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    started_at DATETIME,
    duration_ms INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_accounts_active ON accounts(is_active);
CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_category ON messages(user_id, category);
CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(user_id, received_at);
CREATE INDEX IF NOT EXISTS idx_sync_runs_account ON sync_runs(account_id);
`
