package format

import (
	"math"
	"strconv"
)

// Number renders a volume or price compactly for tables:
//
//	>= 1e12      mantissa with exponent, e.g. 1.50e+12
//	>= 1e9/6/3   two decimals with a B, M or K suffix
//	0            "0"
//	< 1e-7       mantissa with negative exponent, e.g. 3.00e-9
//	otherwise    rounded to three decimals
func Number(v float64) string {
	switch {
	case v >= 1e12:
		return scientific(v, "e+")
	case v >= 1e9:
		return strconv.FormatFloat(v/1e9, 'f', 2, 64) + "B"
	case v >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 2, 64) + "M"
	case v >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 2, 64) + "K"
	case v == 0:
		return "0"
	case v > 0 && v < 1e-7:
		return scientific(v, "e")
	}
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

func scientific(v float64, sep string) string {
	exponent := math.Floor(math.Log10(v))
	mantissa := v / math.Pow(10, exponent)
	return strconv.FormatFloat(mantissa, 'f', 2, 64) + sep + strconv.Itoa(int(exponent))
}
