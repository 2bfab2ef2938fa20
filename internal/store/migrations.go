package store

const schema = `
CREATE TABLE IF NOT EXISTS views (
    category   TEXT NOT NULL,
    slug       TEXT NOT NULL,
    total      INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (category, slug)
);

CREATE INDEX IF NOT EXISTS idx_views_total ON views(total);

CREATE TABLE IF NOT EXISTS submissions (
    id         TEXT PRIMARY KEY,
    category   TEXT NOT NULL,
    slug       TEXT NOT NULL,
    title      TEXT NOT NULL,
    email      TEXT NOT NULL DEFAULT '',
    path       TEXT NOT NULL,
    augmented  BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at);

CREATE TABLE IF NOT EXISTS imported_entries (
    feed        TEXT NOT NULL,
    guid        TEXT NOT NULL,
    slug        TEXT NOT NULL,
    imported_at DATETIME NOT NULL,
    UNIQUE(feed, guid)
);
`
