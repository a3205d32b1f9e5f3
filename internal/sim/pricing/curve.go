// Package pricing turns item quality and market state into currency amounts.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// Curve is the quality-to-price curve used for improvement services. Below
// 70ql it is a power fit; from 70ql on a cubic fit. Both meet at 1000.
func Curve(q float64) int64 {
	if q <= 0 {
		return 0
	}
	if q > 100 {
		q = 100
	}
	if q < 70 {
		return int64(math.Round(0.190567 * math.Pow(q, 2.016126)))
	}
	return int64(math.Round(0.779220779220503*q*q*q - 167.01298701292*q*q + 12083.1168831115*q - 293727.27272713))
}

// ImprovePrice is the charge for raising an item from current to target
// quality, truncated toward zero.
func ImprovePrice(current, target float64, skillBase, materialMult decimal.Decimal) int64 {
	if target <= current {
		return 0
	}
	delta := Curve(target) - Curve(current)
	if delta <= 0 {
		return 0
	}
	return decimal.NewFromInt(delta).Mul(skillBase).Mul(materialMult).Truncate(0).IntPart()
}
