package prompt

import (
	"strings"

	"ai-factcheck-be/pkg/apperror"
)

type ReportType string

const (
	FullCheck     ReportType = "FULL_CHECK"
	ContextReport ReportType = "CONTEXT_REPORT"
	CommunityNote ReportType = "COMMUNITY_NOTE"
)

var reportTypes = []ReportType{FullCheck, ContextReport, CommunityNote}

// ReportTypes lists the supported report types.
func ReportTypes() []ReportType {
	out := make([]ReportType, len(reportTypes))
	copy(out, reportTypes)
	return out
}

func (r ReportType) Valid() bool {
	for _, t := range reportTypes {
		if r == t {
			return true
		}
	}
	return false
}

// ParseReportType accepts any casing and returns a ValidationError for
// unknown values.
func ParseReportType(s string) (ReportType, error) {
	rt := ReportType(strings.ToUpper(strings.TrimSpace(s)))
	if !rt.Valid() {
		return "", apperror.NewValidation("report_type", "unsupported report type "+s)
	}
	return rt, nil
}
