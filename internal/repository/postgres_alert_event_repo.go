package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/marketscope/internal/model"
)

// PostgresAlertEventRepo はPostgreSQLを使用したアラートイベントリポジトリ。
type PostgresAlertEventRepo struct {
	db *sql.DB
}

// NewPostgresAlertEventRepo はPostgresAlertEventRepoを生成する。
func NewPostgresAlertEventRepo(db *sql.DB) *PostgresAlertEventRepo {
	return &PostgresAlertEventRepo{db: db}
}

// Create はアラートイベントを作成する。IDが未設定の場合は新規UUIDを採番する。
func (r *PostgresAlertEventRepo) Create(ctx context.Context, event *model.AlertEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	eventJSON, err := marshalJSONB(event.EventData)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO alert_events
		     (id, workspace_id, rule_id, listing_id, event_data, triggered_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		event.ID, event.WorkspaceID, event.RuleID, event.ListingID, eventJSON,
	)
	if err != nil {
		return fmt.Errorf("アラートイベントの作成に失敗しました: %w", err)
	}

	return nil
}

// ListRecent は指定ルール・出品のsince以降のイベントを新しい順に取得する。
func (r *PostgresAlertEventRepo) ListRecent(ctx context.Context, ruleID, listingID string, since time.Time) ([]*model.AlertEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, rule_id, listing_id, event_data, triggered_at
		 FROM alert_events
		 WHERE rule_id = $1 AND listing_id = $2 AND triggered_at >= $3
		 ORDER BY triggered_at DESC`,
		ruleID, listingID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("直近アラートイベントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanAlertEvents(rows)
}

// ListByWorkspace はワークスペースのイベントを新しい順にlimit件まで取得する。
func (r *PostgresAlertEventRepo) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*model.AlertEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, rule_id, listing_id, event_data, triggered_at
		 FROM alert_events
		 WHERE workspace_id = $1
		 ORDER BY triggered_at DESC
		 LIMIT $2`,
		workspaceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("アラートイベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanAlertEvents(rows)
}

func scanAlertEvents(rows *sql.Rows) ([]*model.AlertEvent, error) {
	var events []*model.AlertEvent
	for rows.Next() {
		event := &model.AlertEvent{}
		var eventJSON []byte
		if err := rows.Scan(
			&event.ID, &event.WorkspaceID, &event.RuleID, &event.ListingID,
			&eventJSON, &event.TriggeredAt,
		); err != nil {
			return nil, fmt.Errorf("アラートイベントの行スキャンに失敗しました: %w", err)
		}
		data, err := unmarshalJSONB(eventJSON)
		if err != nil {
			return nil, err
		}
		event.EventData = data
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アラートイベントの行イテレーションに失敗しました: %w", err)
	}
	return events, nil
}

var _ AlertEventRepository = (*PostgresAlertEventRepo)(nil)
