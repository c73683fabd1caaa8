package postgres

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_counseling_records",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_allocation_cycles",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: COUNSELING RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- The whole record set is one JSON array, loaded and saved as a unit.
CREATE TABLE IF NOT EXISTS counseling_records (
    id SMALLINT PRIMARY KEY DEFAULT 1,
    payload JSONB NOT NULL DEFAULT '[]'::jsonb,
    version BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT single_row CHECK (id = 1),
    CONSTRAINT payload_is_array CHECK (jsonb_typeof(payload) = 'array'),
    CONSTRAINT valid_version CHECK (version >= 0)
);

INSERT INTO counseling_records (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
`

const migration001Down = `
DROP TABLE IF EXISTS counseling_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ALLOCATION CYCLES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS allocation_cycles (
    cycle_id UUID PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    assigned INTEGER NOT NULL,
    unplaced INTEGER NOT NULL,
    overrides INTEGER NOT NULL,
    payload JSONB NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_counts CHECK (assigned >= 0 AND unplaced >= 0 AND overrides >= 0)
);

CREATE INDEX IF NOT EXISTS idx_allocation_cycles_started_at ON allocation_cycles(started_at DESC);
`

const migration002Down = `
DROP INDEX IF EXISTS idx_allocation_cycles_started_at;
DROP TABLE IF EXISTS allocation_cycles;
`
