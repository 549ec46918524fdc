package money

import "fmt"

// All amounts in the system are int64 paise (INR minor units).
// Floating point never touches a balance.

// PaiseToRupees converts paise to whole rupees, truncating.
func PaiseToRupees(paise int64) int64 {
	return paise / 100
}

// RupeesToPaise converts whole rupees to paise.
func RupeesToPaise(rupees int64) int64 {
	return rupees * 100
}

// FormatINR renders paise as a display string, e.g. 125050 -> "₹1250.50".
func FormatINR(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}

// ValidateAmount checks an amount against inclusive bounds. The returned
// error carries the concrete bounds so callers can surface it as-is.
func ValidateAmount(amount, min, max int64) error {
	if amount < min {
		return fmt.Errorf("minimum amount is %s", FormatINR(min))
	}
	if amount > max {
		return fmt.Errorf("maximum amount is %s", FormatINR(max))
	}
	return nil
}

// Split allocates total across ratios with floor division, then assigns the
// entire rounding remainder to the first part so the parts always sum back
// to total exactly.
func Split(total int64, ratios []int64) []int64 {
	if len(ratios) == 0 {
		return nil
	}

	var sum int64
	for _, r := range ratios {
		sum += r
	}
	if sum <= 0 {
		return make([]int64, len(ratios))
	}

	parts := make([]int64, len(ratios))
	var allocated int64
	for i, r := range ratios {
		parts[i] = total * r / sum
		allocated += parts[i]
	}

	// Remainder always lands on index 0. Auditors rely on the parts
	// summing exactly to total.
	parts[0] += total - allocated

	return parts
}

// Percentage returns floor(amount*percent/100).
func Percentage(amount int64, percent int) int64 {
	return amount * int64(percent) / 100
}
