package catalog

import "strconv"

// FormatINR renders whole rupees with Indian digit grouping: ₹1,49,999.
func FormatINR(rupees int64) string {
	neg := rupees < 0
	if neg {
		rupees = -rupees
	}
	digits := strconv.FormatInt(rupees, 10)

	out := digits
	if len(digits) > 3 {
		head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
		var grouped []byte
		for i, d := range []byte(head) {
			if i > 0 && (len(head)-i)%2 == 0 {
				grouped = append(grouped, ',')
			}
			grouped = append(grouped, d)
		}
		out = string(grouped) + "," + tail
	}
	if neg {
		return "-₹" + out
	}
	return "₹" + out
}
