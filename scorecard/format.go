package scorecard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatValue renders a target or baseline for display. Percent values are
// shown with two decimals; other values drop insignificant zeros.
func FormatValue(v float64, isPercent bool) string {
	if isPercent {
		return fmt.Sprintf("%.2f%%", v*100)
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		if v == 0 {
			return "0"
		}
		return strconv.FormatInt(int64(v), 10)
	}
	if math.Abs(v) >= 100 {
		return fmt.Sprintf("%.2f", v)
	}
	s := strings.TrimRight(fmt.Sprintf("%.4f", v), "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// StandardRule writes the canonical four-clause linear scoring rule for an
// indicator.
func StandardRule(target, baseline float64, direction Direction, isPercent bool) string {
	t := FormatValue(target, isPercent)
	b := FormatValue(baseline, isPercent)

	var sb strings.Builder
	fmt.Fprintf(&sb, "P为指标实际值，%s为目标值，%s为底线值。\n", t, b)
	if direction == Negative {
		fmt.Fprintf(&sb, "1.若P≤%s，得100分（满分）；\n", t)
		fmt.Fprintf(&sb, "2.若%s<P<%s，按线性比例计算，即：得分=100-(P-%s)/(%s-%s)×(100-60)；\n", t, b, t, b, t)
		fmt.Fprintf(&sb, "3.若P=%s，得60分（基础分）；\n", b)
		fmt.Fprintf(&sb, "4.若P＞%s，得0分。", b)
		return sb.String()
	}
	fmt.Fprintf(&sb, "1.若P≥%s，得100分（满分）；\n", t)
	fmt.Fprintf(&sb, "2.若%s<P<%s，按线性比例计算，即：得分=60+(P-%s)/(%s-%s)×(100-60)；\n", b, t, b, t, b)
	fmt.Fprintf(&sb, "3.若P=%s，得60分（基础分）；\n", b)
	fmt.Fprintf(&sb, "4.若P<%s，得0分。", b)
	return sb.String()
}
