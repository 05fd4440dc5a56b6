package scorecard

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	StatusSuccess     = "成功"
	StatusManualCheck = "人工校验"
	StatusNoSemiData  = "无半年度数据"
	statusErrorPrefix = "ERROR"
)

// Points a rule may deduct before the indicator falls to the 60-point floor.
const allowedDeduction = 40.0

var (
	ErrZeroDeduction = errors.New("rule deducts zero points per step")
	ErrInvalidTarget = errors.New("target value is not a finite number")
)

// Result is the derived baseline of a single indicator.
type Result struct {
	Target    float64
	Baseline  float64
	Percent   bool
	Status    string
	Direction Direction
}

// CalculateBaseline derives the 60-point baseline of an indicator from its
// target and scoring rule. Rule kinds are tried in priority order: incident
// counts, ratio scoring, percent of target, per-step deductions and explicit
// floors. A rule that matches none of them gets a default baseline of 80% of
// target (120% when lower is better) and the manual-check status.
func CalculateBaseline(target float64, rule string, isPercent bool) (float64, string, Direction, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return 0, "", "", ErrInvalidTarget
	}
	rule = NormalizeFullWidth(rule)

	direction := DetectDirection(rule)
	if direction == "" {
		direction = Positive
	}

	if d, ok := ExtractAccident(rule); ok {
		if d.Points == 0 {
			return 0, "", "", ErrZeroDeduction
		}
		return allowedDeduction / d.Points * d.Step, StatusSuccess, d.Direction, nil
	}

	if ratio, dir, ok := ExtractRatio(rule); ok {
		return target * ratio, StatusSuccess, dir, nil
	}

	if ratio, dir, ofTarget, ok := ExtractTargetPercent(rule); ok {
		if !ofTarget && isPercent {
			return ratio, StatusSuccess, dir, nil
		}
		return target * ratio, StatusSuccess, dir, nil
	}

	if d, ok := ExtractDeduction(rule); ok {
		if d.Points == 0 {
			return 0, "", "", ErrZeroDeduction
		}
		gap := allowedDeduction / d.Points * d.Step
		if d.Percent {
			gap /= 100
		}
		if d.Direction == Negative {
			return target + gap, StatusSuccess, d.Direction, nil
		}
		return target - gap, StatusSuccess, d.Direction, nil
	}

	if baseline, dir, ok := ExtractExplicit(rule); ok {
		// "60分以下不得分" names a score, not a floor; keep the voted direction.
		if math.Abs(baseline-60) < 0.01 && strings.Contains(rule, "不得分") {
			return baseline, StatusSuccess, direction, nil
		}
		return baseline, StatusSuccess, dir, nil
	}

	if direction == Negative {
		return target * 1.2, StatusManualCheck, direction, nil
	}
	return target * 0.8, StatusManualCheck, direction, nil
}

// Evaluate normalises a raw target cell and derives its baseline. Rows that
// fall back to the default baseline take their direction from where the
// baseline landed relative to the target.
func Evaluate(rawTarget, rule string) (Result, error) {
	target, isPercent := NormalizeTarget(rawTarget)
	baseline, status, direction, err := CalculateBaseline(target, rule, isPercent)
	if err != nil {
		return Result{}, err
	}
	if status == StatusManualCheck {
		switch {
		case baseline < target:
			direction = Positive
		case baseline > target:
			direction = Negative
		}
	}
	return Result{
		Target:    target,
		Baseline:  baseline,
		Percent:   isPercent,
		Status:    status,
		Direction: direction,
	}, nil
}

// ErrorStatus renders err as a row status, truncated to 50 characters.
func ErrorStatus(err error) string {
	msg := []rune(err.Error())
	if len(msg) > 50 {
		msg = msg[:50]
	}
	return fmt.Sprintf("%s: %s", statusErrorPrefix, string(msg))
}

// IsErrorStatus reports whether status marks a failed row.
func IsErrorStatus(status string) bool {
	return strings.Contains(status, statusErrorPrefix)
}
