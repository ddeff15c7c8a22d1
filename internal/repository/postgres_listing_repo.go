package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/marketscope/internal/model"
)

// PostgresListingRepo はPostgreSQLを使用した監視対象出品リポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

// FindByID は指定IDの監視対象出品を取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id string) (*model.TrackedListing, error) {
	listing := &model.TrackedListing{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, marketplace, external_id, title, created_at, updated_at
		 FROM listings_current WHERE id = $1`,
		id,
	).Scan(
		&listing.ID, &listing.WorkspaceID, &listing.Marketplace,
		&listing.ExternalID, &listing.Title, &listing.CreatedAt, &listing.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("監視対象出品の取得に失敗しました: %w", err)
	}

	return listing, nil
}

// FindByIDs はワークスペース内の指定ID群の監視対象出品を取得する。
// 存在しないIDは結果から除外される。
func (r *PostgresListingRepo) FindByIDs(ctx context.Context, workspaceID string, ids []string) ([]*model.TrackedListing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, marketplace, external_id, title, created_at, updated_at
		 FROM listings_current
		 WHERE workspace_id = $1 AND id = ANY($2)
		 ORDER BY updated_at DESC`,
		workspaceID, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("監視対象出品の一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanTrackedListings(rows)
}

// ListRecentByWorkspace はワークスペースの監視対象出品を更新日時の新しい順に
// limit件まで取得する。
func (r *PostgresListingRepo) ListRecentByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*model.TrackedListing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, marketplace, external_id, title, created_at, updated_at
		 FROM listings_current
		 WHERE workspace_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		workspaceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("監視対象出品の一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanTrackedListings(rows)
}

// Upsert は出品の現在状態を冪等にUPSERTする。
// (workspace_id, marketplace, external_id)をキーとし、既存行は上書き更新される。
// 戻り値は行の内部UUID（既存行の場合は既存のUUID）。
func (r *PostgresListingRepo) Upsert(ctx context.Context, listing *model.TrackedListing, rawData, normalizedData, derivedData map[string]any) (string, error) {
	rawJSON, err := marshalJSONB(rawData)
	if err != nil {
		return "", err
	}
	normalizedJSON, err := marshalJSONB(normalizedData)
	if err != nil {
		return "", err
	}
	derivedJSON, err := marshalJSONB(derivedData)
	if err != nil {
		return "", err
	}

	newID := listing.ID
	if newID == "" {
		newID = uuid.New().String()
	}

	var id string
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO listings_current
		     (id, workspace_id, marketplace, external_id, title,
		      raw_data, normalized_data, derived_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		 ON CONFLICT (workspace_id, marketplace, external_id) DO UPDATE SET
		     title = EXCLUDED.title,
		     raw_data = EXCLUDED.raw_data,
		     normalized_data = EXCLUDED.normalized_data,
		     derived_data = EXCLUDED.derived_data,
		     updated_at = now()
		 RETURNING id`,
		newID, listing.WorkspaceID, listing.Marketplace, listing.ExternalID,
		listing.Title, rawJSON, normalizedJSON, derivedJSON,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("監視対象出品のUPSERTに失敗しました: %w", err)
	}

	return id, nil
}

func scanTrackedListings(rows *sql.Rows) ([]*model.TrackedListing, error) {
	var listings []*model.TrackedListing
	for rows.Next() {
		listing := &model.TrackedListing{}
		if err := rows.Scan(
			&listing.ID, &listing.WorkspaceID, &listing.Marketplace,
			&listing.ExternalID, &listing.Title, &listing.CreatedAt, &listing.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("監視対象出品の行スキャンに失敗しました: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("監視対象出品の行イテレーションに失敗しました: %w", err)
	}
	return listings, nil
}

// marshalJSONB はmapをJSONBカラム用のバイト列に変換する。nilは空オブジェクトとして扱う。
func marshalJSONB(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("JSONBデータのシリアライズに失敗しました: %w", err)
	}
	return b, nil
}

// unmarshalJSONB はJSONBカラムのバイト列をmapに変換する。空の場合はnilを返す。
func unmarshalJSONB(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("JSONBデータのデシリアライズに失敗しました: %w", err)
	}
	return data, nil
}

var _ ListingRepository = (*PostgresListingRepo)(nil)
