package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS hot_events (
    id              TEXT PRIMARY KEY,
    org_id          TEXT NOT NULL,
    project_id      TEXT NOT NULL,
    metric          TEXT NOT NULL,
    idempotency_key TEXT NOT NULL UNIQUE,
    ingested_at     DATETIME NOT NULL,
    processed_at    DATETIME,
    data            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hot_events_unprocessed ON hot_events (ingested_at) WHERE processed_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_hot_events_scope ON hot_events (org_id, project_id, metric, ingested_at);
`
