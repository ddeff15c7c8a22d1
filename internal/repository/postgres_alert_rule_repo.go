package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/marketscope/internal/model"
)

// PostgresAlertRuleRepo はPostgreSQLを使用したアラートルールリポジトリ。
type PostgresAlertRuleRepo struct {
	db *sql.DB
}

// NewPostgresAlertRuleRepo はPostgresAlertRuleRepoを生成する。
func NewPostgresAlertRuleRepo(db *sql.DB) *PostgresAlertRuleRepo {
	return &PostgresAlertRuleRepo{db: db}
}

// FindByID は指定IDのルールを取得する。見つからない場合はnilを返す。
func (r *PostgresAlertRuleRepo) FindByID(ctx context.Context, id string) (*model.AlertRule, error) {
	rule := &model.AlertRule{}
	var listingID sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, listing_id, condition_field, condition_operator,
		        condition_threshold, is_active, created_at
		 FROM alert_rules WHERE id = $1`,
		id,
	).Scan(
		&rule.ID, &rule.WorkspaceID, &listingID,
		&rule.Condition.Field, &rule.Condition.Operator, &rule.Condition.Threshold,
		&rule.IsActive, &rule.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アラートルールの取得に失敗しました: %w", err)
	}

	rule.ListingID = nullStringValue(listingID)

	return rule, nil
}

// ListActive は全ワークスペースのアクティブなルールを取得する。
func (r *PostgresAlertRuleRepo) ListActive(ctx context.Context) ([]*model.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, listing_id, condition_field, condition_operator,
		        condition_threshold, is_active, created_at
		 FROM alert_rules
		 WHERE is_active
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブなアラートルールの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanAlertRules(rows)
}

// ListByWorkspace はワークスペースの全ルールを取得する。
func (r *PostgresAlertRuleRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]*model.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, listing_id, condition_field, condition_operator,
		        condition_threshold, is_active, created_at
		 FROM alert_rules
		 WHERE workspace_id = $1
		 ORDER BY created_at`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("アラートルール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanAlertRules(rows)
}

// Create はルールを作成する。IDが未設定の場合は新規UUIDを採番する。
func (r *PostgresAlertRuleRepo) Create(ctx context.Context, rule *model.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alert_rules
		     (id, workspace_id, listing_id, condition_field, condition_operator,
		      condition_threshold, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		rule.ID, rule.WorkspaceID, nullString(rule.ListingID),
		rule.Condition.Field, rule.Condition.Operator, rule.Condition.Threshold,
		rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("アラートルールの作成に失敗しました: %w", err)
	}

	return nil
}

// SetActive はルールの有効/無効を切り替える。
func (r *PostgresAlertRuleRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alert_rules SET is_active = $2 WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("アラートルールの状態更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのルールを削除する。
func (r *PostgresAlertRuleRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM alert_rules WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("アラートルールの削除に失敗しました: %w", err)
	}
	return nil
}

func scanAlertRules(rows *sql.Rows) ([]*model.AlertRule, error) {
	var rules []*model.AlertRule
	for rows.Next() {
		rule := &model.AlertRule{}
		var listingID sql.NullString
		if err := rows.Scan(
			&rule.ID, &rule.WorkspaceID, &listingID,
			&rule.Condition.Field, &rule.Condition.Operator, &rule.Condition.Threshold,
			&rule.IsActive, &rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("アラートルールの行スキャンに失敗しました: %w", err)
		}
		rule.ListingID = nullStringValue(listingID)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アラートルールの行イテレーションに失敗しました: %w", err)
	}
	return rules, nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを生成する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから値を取り出す。NULLの場合は空文字列を返す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

var _ AlertRuleRepository = (*PostgresAlertRuleRepo)(nil)
