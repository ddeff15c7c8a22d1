package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/marketscope/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用したスナップショットリポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// GetLatest は指定出品の直近スナップショットを取得する。見つからない場合はnilを返す。
func (r *PostgresSnapshotRepo) GetLatest(ctx context.Context, workspaceID, listingUUID string) (*model.Snapshot, error) {
	snapshot := &model.Snapshot{}
	var rawJSON, normalizedJSON, derivedJSON []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, listing_uuid, raw_data, normalized_data,
		        derived_data, content_hash, captured_at
		 FROM listing_snapshots
		 WHERE workspace_id = $1 AND listing_uuid = $2
		 ORDER BY captured_at DESC
		 LIMIT 1`,
		workspaceID, listingUUID,
	).Scan(
		&snapshot.ID, &snapshot.WorkspaceID, &snapshot.ListingUUID,
		&rawJSON, &normalizedJSON, &derivedJSON,
		&snapshot.ContentHash, &snapshot.CapturedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("直近スナップショットの取得に失敗しました: %w", err)
	}

	if snapshot.RawData, err = unmarshalJSONB(rawJSON); err != nil {
		return nil, err
	}
	if snapshot.NormalizedData, err = unmarshalJSONB(normalizedJSON); err != nil {
		return nil, err
	}
	if snapshot.DerivedData, err = unmarshalJSONB(derivedJSON); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// InsertIfChanged はコンテンツハッシュが直近スナップショットと異なる場合のみ
// スナップショットを挿入する。同一コンテンツの場合は挿入せずfalseを返す。
// 同一出品への書き込みは監視サイクル内で直列化されている前提。
func (r *PostgresSnapshotRepo) InsertIfChanged(ctx context.Context, snapshot *model.Snapshot) (bool, error) {
	var latestHash sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT content_hash FROM listing_snapshots
		 WHERE workspace_id = $1 AND listing_uuid = $2
		 ORDER BY captured_at DESC
		 LIMIT 1`,
		snapshot.WorkspaceID, snapshot.ListingUUID,
	).Scan(&latestHash)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("直近スナップショットのハッシュ取得に失敗しました: %w", err)
	}

	if latestHash.Valid && latestHash.String == snapshot.ContentHash {
		return false, nil
	}

	rawJSON, err := marshalJSONB(snapshot.RawData)
	if err != nil {
		return false, err
	}
	normalizedJSON, err := marshalJSONB(snapshot.NormalizedData)
	if err != nil {
		return false, err
	}
	derivedJSON, err := marshalJSONB(snapshot.DerivedData)
	if err != nil {
		return false, err
	}

	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO listing_snapshots
		     (id, workspace_id, listing_uuid, raw_data, normalized_data,
		      derived_data, content_hash, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		snapshot.ID, snapshot.WorkspaceID, snapshot.ListingUUID,
		rawJSON, normalizedJSON, derivedJSON, snapshot.ContentHash,
	)
	if err != nil {
		return false, fmt.Errorf("スナップショットの挿入に失敗しました: %w", err)
	}

	return true, nil
}

var _ SnapshotRepository = (*PostgresSnapshotRepo)(nil)
