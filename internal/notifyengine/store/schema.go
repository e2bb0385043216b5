package store

// SchemaVersion tracks the current schema revision, following the
// schema_version bookkeeping table (src/database/schema.go).
const SchemaVersion = 1

// SchemaFor returns the DDL for the given sql driver name. Placeholder
// style in query helpers elsewhere in this package follows the uniform
// "?" convention used in src/database/connection.go rather than
// per-driver placeholder syntax.
func SchemaFor(driver string) string {
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "pgx" {
		autoIncrement = "SERIAL PRIMARY KEY"
	} else if driver == "mysql" {
		autoIncrement = "INTEGER PRIMARY KEY AUTO_INCREMENT"
	} else if driver == "mssql" {
		autoIncrement = "INTEGER IDENTITY(1,1) PRIMARY KEY"
	}

	return `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	channel TEXT NOT NULL,
	fallback_channels TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL,
	template_id TEXT NOT NULL DEFAULT '',
	variables TEXT NOT NULL DEFAULT '{}',
	recipient TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	not_before DATETIME,
	expires_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_state ON notifications(state);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);

CREATE TABLE IF NOT EXISTS delivery_records (
	notification_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	state TEXT NOT NULL,
	sent_at DATETIME,
	delivered_at DATETIME,
	read_at DATETIME,
	failed_at DATETIME,
	next_retry_at DATETIME,
	last_error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_delivery_records_next_retry ON delivery_records(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_delivery_records_channel ON delivery_records(channel);
CREATE INDEX IF NOT EXISTS idx_delivery_records_status ON delivery_records(state);

CREATE TABLE IF NOT EXISTS attempts (
	id TEXT PRIMARY KEY,
	notification_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	attempt_number INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	success INTEGER NOT NULL,
	failure_kind TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	provider_ref TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_attempts_notification ON attempts(notification_id);

CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	channel TEXT NOT NULL,
	version INTEGER NOT NULL,
	active INTEGER NOT NULL DEFAULT 0,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	schema TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_templates_type_channel_active ON templates(type, channel, active);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	channels TEXT NOT NULL DEFAULT '',
	quiet_enabled INTEGER NOT NULL DEFAULT 0,
	quiet_timezone TEXT NOT NULL DEFAULT 'UTC',
	quiet_start_hour INTEGER NOT NULL DEFAULT 0,
	quiet_start_min INTEGER NOT NULL DEFAULT 0,
	quiet_end_hour INTEGER NOT NULL DEFAULT 0,
	quiet_end_min INTEGER NOT NULL DEFAULT 0,
	batch TEXT NOT NULL DEFAULT 'none',
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, type)
);

CREATE TABLE IF NOT EXISTS provider_state (
	channel TEXT PRIMARY KEY,
	breaker TEXT NOT NULL DEFAULT 'closed',
	consecutive_fails INTEGER NOT NULL DEFAULT 0,
	opened_at DATETIME,
	last_probe_at DATETIME,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_points (
	id ` + autoIncrement + `,
	channel TEXT NOT NULL,
	tier TEXT NOT NULL,
	bucket_time DATETIME NOT NULL,
	sent INTEGER NOT NULL DEFAULT 0,
	delivered INTEGER NOT NULL DEFAULT 0,
	read INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	latency_sum_ms INTEGER NOT NULL DEFAULT 0,
	latency_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_metric_points_lookup ON metric_points(channel, tier, bucket_time);

CREATE TABLE IF NOT EXISTS in_app_inbox (
	id ` + autoIncrement + `,
	user_id TEXT NOT NULL,
	notification_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_in_app_inbox_user ON in_app_inbox(user_id, created_at);
`
}
