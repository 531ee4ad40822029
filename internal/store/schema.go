package store

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	id                    BIGINT PRIMARY KEY,
	client_code           TEXT NOT NULL,
	agent_id              TEXT NOT NULL DEFAULT '-1',
	agent_name            TEXT NOT NULL DEFAULT '',
	project_id            INTEGER,
	call_duration_seconds INTEGER,
	file_size_bytes       BIGINT NOT NULL DEFAULT 0,
	file_date             DATE NOT NULL,
	file_name             TEXT NOT NULL DEFAULT '',
	file_path             TEXT NOT NULL DEFAULT '',
	discovered_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_file_date ON recordings (file_date);

CREATE TABLE IF NOT EXISTS audit_selections (
	id           UUID PRIMARY KEY,
	recording_id BIGINT NOT NULL REFERENCES recordings (id),
	agent_id     TEXT NOT NULL,
	agent_name   TEXT NOT NULL DEFAULT '',
	client_code  TEXT NOT NULL,
	week_start   DATE NOT NULL,
	week_end     DATE NOT NULL,
	status       TEXT NOT NULL DEFAULT 'selected'
		CHECK (status IN ('selected', 'in_review', 'completed', 'skipped')),
	score        INTEGER CHECK (score BETWEEN 0 AND 100),
	notes        TEXT NOT NULL DEFAULT '',
	quota_exempt BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_audit_selections_recording
	ON audit_selections (recording_id);

CREATE UNIQUE INDEX IF NOT EXISTS uq_audit_selections_agent_week
	ON audit_selections (agent_id, week_start) WHERE NOT quota_exempt;

CREATE INDEX IF NOT EXISTS idx_audit_selections_week ON audit_selections (week_start);

CREATE TABLE IF NOT EXISTS qa_evaluations (
	id                 UUID PRIMARY KEY,
	recording_id       BIGINT NOT NULL UNIQUE REFERENCES recordings (id),
	selection_id       UUID NOT NULL REFERENCES audit_selections (id),
	rubric_id          TEXT NOT NULL,
	judgments          JSONB NOT NULL,
	score              INTEGER NOT NULL,
	original_judgments JSONB,
	original_score     INTEGER,
	summary            TEXT NOT NULL DEFAULT '',
	transcript         TEXT NOT NULL DEFAULT '',
	unintelligible     BOOLEAN NOT NULL DEFAULT false,
	evaluator          TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS evaluation_changes (
	id            UUID PRIMARY KEY,
	evaluation_id UUID NOT NULL REFERENCES qa_evaluations (id),
	selection_id  UUID NOT NULL REFERENCES audit_selections (id),
	actor         TEXT NOT NULL,
	changes       JSONB NOT NULL,
	score_before  INTEGER NOT NULL,
	score_after   INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_evaluation_changes_selection ON evaluation_changes (selection_id);
`
