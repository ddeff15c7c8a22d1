package monitor

import (
	"github.com/hitoshi/marketscope/internal/model"
)

// EvaluateCondition は変化集合に対してアラート条件が成立するか判定する。
// changedは任意の不一致で成立。decreased_by_pct/increased_by_pctは
// (new-old)/old × 100 を計算し、指定方向に閾値以上動いた場合に成立する。
// 旧値がゼロまたは数値でないペアは決して成立しない（ゼロ除算回避）。
func EvaluateCondition(cond model.AlertCondition, changes map[string]FieldChange) bool {
	change, ok := changes[cond.Field]
	if !ok {
		return false
	}

	switch cond.Operator {
	case model.OperatorChanged:
		return true

	case model.OperatorDecreasedByPct:
		pct, ok := percentChange(change)
		if !ok {
			return false
		}
		return pct <= -cond.Threshold

	case model.OperatorIncreasedByPct:
		pct, ok := percentChange(change)
		if !ok {
			return false
		}
		return pct >= cond.Threshold

	default:
		return false
	}
}

// percentChange は変化率（%）を計算する。
// 新旧いずれかが数値でない、または旧値がゼロの場合はfalseを返す。
func percentChange(change FieldChange) (float64, bool) {
	oldValue, ok := asFloat(change.Old)
	if !ok || oldValue == 0 {
		return 0, false
	}
	newValue, ok := asFloat(change.New)
	if !ok {
		return 0, false
	}
	return (newValue - oldValue) / oldValue * 100, true
}

// asFloat はJSONB往復で現れる数値表現をfloat64に揃える。
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
