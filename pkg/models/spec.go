package models

import "time"

// DateField selects which header date a date-range filter looks at.
type DateField string

const (
	DateFieldFiling DateField = "filing"
	DateFieldPeriod DateField = "period"
)

// FilterSpec is the immutable per-run filter configuration.
type FilterSpec struct {
	FormTypes []string  `json:"form_types" yaml:"form_types"`
	CIKs      []string  `json:"ciks" yaml:"ciks"`
	Begin     time.Time `json:"begin" yaml:"-"`
	End       time.Time `json:"end" yaml:"-"`
	DateField DateField `json:"date_field" yaml:"date_field"`
	MaxCount  int       `json:"max_count" yaml:"max_count"` // 0 = unlimited
	ResumeAt  FilingID  `json:"resume_at" yaml:"resume_at"`
}
