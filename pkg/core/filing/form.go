package filing

import "strings"

const amendmentSuffix = "_A"

// NormalizeFormType upper-cases a form type and replaces "/" with "_", so
// "10-k/a" becomes "10-K_A".
func NormalizeFormType(form string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(form)), "/", "_")
}

// BaseFormType strips the amendment suffix: "10-K_A" -> "10-K".
func BaseFormType(form string) string {
	form = NormalizeFormType(form)
	return strings.TrimSuffix(form, amendmentSuffix)
}

// IsAmendment reports whether form is an amended submission.
func IsAmendment(form string) bool {
	return strings.HasSuffix(NormalizeFormType(form), amendmentSuffix)
}
