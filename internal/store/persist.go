package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/knowcode/knowcode/internal/model"
)

// ScanMetadata describes the scan run that produced a persisted document.
type ScanMetadata struct {
	ScanTime  time.Time `json:"scan_time"`
	FileCount int       `json:"file_count"`
	Errors    []string  `json:"errors,omitempty"`
}

// Document is the self-describing persistence unit: entities,
// relationships, chunk metadata, and scan metadata, versioned by
// SchemaVersion.
type Document struct {
	SchemaVersion int
	Entities      []model.Entity
	Relationships []model.Relationship
	Chunks        []model.Chunk
	ScanMetadata  ScanMetadata
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS store_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	short_name     TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	file           TEXT NOT NULL,
	start_line     INTEGER NOT NULL,
	end_line       INTEGER NOT NULL,
	source_code    TEXT,
	docstring      TEXT,
	signature      TEXT,
	attrs_json     TEXT
);
CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_qname ON entities(qualified_name);

CREATE TABLE IF NOT EXISTS relationships (
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	attrs_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_kind ON relationships(kind);

CREATE TABLE IF NOT EXISTS scan_metadata (
	scan_time  TEXT NOT NULL,
	file_count INTEGER NOT NULL,
	errors_json TEXT
);

CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	entity_id    TEXT,
	text         TEXT NOT NULL,
	file         TEXT NOT NULL,
	start_line   INTEGER NOT NULL,
	end_line     INTEGER NOT NULL,
	content_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file);
`

// OpenSQLite opens (creating if necessary) the SQLite persistence database
// at path and ensures its schema exists.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(createSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// Save overwrites the persisted document atomically: entities,
// relationships, and scan_metadata are replaced within a single
// transaction, so a reader never observes a partially written document.
func Save(db *sql.DB, doc Document) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM entities", "DELETE FROM relationships", "DELETE FROM scan_metadata", "DELETE FROM chunks"} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clear tables: %w", err)
		}
	}

	entityStmt, err := tx.Prepare(`INSERT INTO entities
		(id, kind, short_name, qualified_name, file, start_line, end_line, source_code, docstring, signature, attrs_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entity insert: %w", err)
	}
	defer entityStmt.Close()

	for _, e := range doc.Entities {
		attrsJSON, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("marshal attrs for %s: %w", e.ID, err)
		}
		if _, err := entityStmt.Exec(e.ID, string(e.Kind), e.ShortName, e.QualifiedName,
			e.Location.File, e.Location.StartLine, e.Location.EndLine,
			e.SourceCode, e.Docstring, e.Signature, string(attrsJSON)); err != nil {
			return fmt.Errorf("insert entity %s: %w", e.ID, err)
		}
	}

	relStmt, err := tx.Prepare(`INSERT INTO relationships (source_id, target_id, kind, attrs_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare relationship insert: %w", err)
	}
	defer relStmt.Close()

	for _, r := range doc.Relationships {
		attrsJSON, err := json.Marshal(r.Attrs)
		if err != nil {
			return fmt.Errorf("marshal attrs for %s->%s: %w", r.SourceID, r.TargetID, err)
		}
		if _, err := relStmt.Exec(r.SourceID, r.TargetID, string(r.Kind), string(attrsJSON)); err != nil {
			return fmt.Errorf("insert relationship %s->%s: %w", r.SourceID, r.TargetID, err)
		}
	}

	chunkStmt, err := tx.Prepare(`INSERT INTO chunks
		(id, kind, entity_id, text, file, start_line, end_line, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	for _, c := range doc.Chunks {
		if _, err := chunkStmt.Exec(c.ID, string(c.Kind), c.EntityID, c.Text, c.File,
			c.StartLine, c.EndLine, c.ContentHash); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	errorsJSON, err := json.Marshal(doc.ScanMetadata.Errors)
	if err != nil {
		return fmt.Errorf("marshal scan errors: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO scan_metadata (scan_time, file_count, errors_json) VALUES (?, ?, ?)`,
		doc.ScanMetadata.ScanTime.UTC().Format(time.RFC3339), doc.ScanMetadata.FileCount, string(errorsJSON)); err != nil {
		return fmt.Errorf("insert scan_metadata: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO store_metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprint(model.CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	return tx.Commit()
}

// Load reads the persisted document. It rejects a document whose schema
// version is newer than this reader's CurrentSchemaVersion.
func Load(db *sql.DB) (Document, error) {
	var doc Document
	doc.SchemaVersion = model.CurrentSchemaVersion

	var versionStr string
	err := db.QueryRow(`SELECT value FROM store_metadata WHERE key = 'schema_version'`).Scan(&versionStr)
	if err == sql.ErrNoRows {
		return doc, nil // empty database, nothing persisted yet
	}
	if err != nil {
		return Document{}, fmt.Errorf("read schema version: %w", err)
	}
	var onDiskVersion int
	if _, err := fmt.Sscanf(versionStr, "%d", &onDiskVersion); err != nil {
		return Document{}, fmt.Errorf("parse schema version %q: %w", versionStr, err)
	}
	if onDiskVersion > model.CurrentSchemaVersion {
		return Document{}, fmt.Errorf("document schema version %d is newer than reader version %d", onDiskVersion, model.CurrentSchemaVersion)
	}

	rows, err := db.Query(`SELECT id, kind, short_name, qualified_name, file, start_line, end_line, source_code, docstring, signature, attrs_json FROM entities`)
	if err != nil {
		return Document{}, fmt.Errorf("query entities: %w", err)
	}
	for rows.Next() {
		var e model.Entity
		var kind, attrsJSON string
		var sourceCode, docstring, signature sql.NullString
		if err := rows.Scan(&e.ID, &kind, &e.ShortName, &e.QualifiedName, &e.Location.File,
			&e.Location.StartLine, &e.Location.EndLine, &sourceCode, &docstring, &signature, &attrsJSON); err != nil {
			rows.Close()
			return Document{}, fmt.Errorf("scan entity: %w", err)
		}
		e.Kind = model.EntityKind(kind)
		e.SourceCode = sourceCode.String
		e.Docstring = docstring.String
		e.Signature = signature.String
		if attrsJSON != "" {
			if err := json.Unmarshal([]byte(attrsJSON), &e.Attrs); err != nil {
				rows.Close()
				return Document{}, fmt.Errorf("unmarshal attrs for %s: %w", e.ID, err)
			}
		}
		doc.Entities = append(doc.Entities, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Document{}, err
	}

	relRows, err := db.Query(`SELECT source_id, target_id, kind, attrs_json FROM relationships`)
	if err != nil {
		return Document{}, fmt.Errorf("query relationships: %w", err)
	}
	for relRows.Next() {
		var r model.Relationship
		var kind, attrsJSON string
		if err := relRows.Scan(&r.SourceID, &r.TargetID, &kind, &attrsJSON); err != nil {
			relRows.Close()
			return Document{}, fmt.Errorf("scan relationship: %w", err)
		}
		r.Kind = model.RelationKind(kind)
		if attrsJSON != "" {
			if err := json.Unmarshal([]byte(attrsJSON), &r.Attrs); err != nil {
				relRows.Close()
				return Document{}, fmt.Errorf("unmarshal attrs for %s->%s: %w", r.SourceID, r.TargetID, err)
			}
		}
		doc.Relationships = append(doc.Relationships, r)
	}
	relRows.Close()
	if err := relRows.Err(); err != nil {
		return Document{}, err
	}

	chunkRows, err := db.Query(`SELECT id, kind, entity_id, text, file, start_line, end_line, content_hash FROM chunks`)
	if err != nil {
		return Document{}, fmt.Errorf("query chunks: %w", err)
	}
	for chunkRows.Next() {
		var c model.Chunk
		var kind string
		var entityID sql.NullString
		if err := chunkRows.Scan(&c.ID, &kind, &entityID, &c.Text, &c.File, &c.StartLine, &c.EndLine, &c.ContentHash); err != nil {
			chunkRows.Close()
			return Document{}, fmt.Errorf("scan chunk: %w", err)
		}
		c.Kind = model.ChunkKind(kind)
		c.EntityID = entityID.String
		doc.Chunks = append(doc.Chunks, c)
	}
	chunkRows.Close()
	if err := chunkRows.Err(); err != nil {
		return Document{}, err
	}

	var scanTimeStr string
	var errorsJSON string
	err = db.QueryRow(`SELECT scan_time, file_count, errors_json FROM scan_metadata ORDER BY rowid DESC LIMIT 1`).
		Scan(&scanTimeStr, &doc.ScanMetadata.FileCount, &errorsJSON)
	if err != nil && err != sql.ErrNoRows {
		return Document{}, fmt.Errorf("read scan_metadata: %w", err)
	}
	if err == nil {
		if t, parseErr := time.Parse(time.RFC3339, scanTimeStr); parseErr == nil {
			doc.ScanMetadata.ScanTime = t
		}
		if errorsJSON != "" {
			_ = json.Unmarshal([]byte(errorsJSON), &doc.ScanMetadata.Errors)
		}
	}

	return doc, nil
}
