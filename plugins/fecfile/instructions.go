package fecfile

import (
	"fmt"
	"strings"

	"fragmentcore/pkg/filing"
)

const responseStyleInstructions = `RESPONSE STYLE INSTRUCTIONS:
- Start with your best judgment about whether this filing has unusual aspects worth highlighting
- Write in a simple, direct style accessible to a general audience
- Avoid excessive use of asterisks or bold text
- Don't provide a summary at the end`

const amendmentGuidance = `AMENDMENT DETECTION:
Check the amendment_indicator field to classify this filing:
- 'A' = Standard Amendment (replaces an earlier report)
- 'T' = Termination Amendment
- 'N' or empty = New filing
For amendments, the previous_report_amendment_indicator field identifies the report being amended.`

const f1Guidance = `FORM TYPE: F1 - Committee registration/organization details.
Key fields: committee_name, committee_type, treasurer_name, and the committee address.`

const f99Guidance = `FORM TYPE: F99 - Miscellaneous text communications.
The 'text' field contains the substantive content of the communication.`

// buildContent renders the prompt fragment body for one parsed filing:
// response style guidance, form-specific analysis guidance, and the raw
// structured data.
func buildContent(doc *filing.Document) (string, error) {
	raw, err := doc.IndentedJSON()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(responseStyleInstructions)
	b.WriteString("\n\n")
	b.WriteString("FEC FILING ANALYSIS INSTRUCTIONS:\n\n")
	b.WriteString(formGuidance(doc))
	b.WriteString("\n\n")
	b.WriteString(amendmentGuidance)
	b.WriteString("\n\n")
	b.WriteString("RAW FILING DATA:\n\n")
	b.WriteString(raw)
	return b.String(), nil
}

func formGuidance(doc *filing.Document) string {
	form := filing.NormalizeFormType(doc.FormType())
	switch form {
	case "F1":
		return f1Guidance
	case "F99":
		return f99Guidance
	case "F3", "F3X", "F3P":
		return financialGuidance(form, doc)
	case "":
		return "FORM TYPE: unknown - Characterize this report from the filing fields below."
	default:
		return fmt.Sprintf("FORM TYPE: %s - Characterize this report from the filing fields below.", form)
	}
}

func financialGuidance(form string, doc *filing.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FORM TYPE: %s - Financial report showing money raised and spent.\n\n", form)
	b.WriteString(`FINANCIAL SUMMARY COLUMNS:
- col_a_total_receipts: total money raised this period
- col_a_total_disbursements: total money spent this period
- col_a_cash_on_hand_close_of_period: cash remaining at the end of the period
- coverage_from_date and coverage_through_date: the reporting period

ITEMIZATION SCHEDULES:
- Schedule A itemizes contributions received: contributor_organization_name, contribution_amount, contributor_city, contributor_state, contribution_date
- Schedule B itemizes expenditures made: payee_organization_name, expenditure_amount, expenditure_purpose_descrip, expenditure_date`)
	if names := doc.ScheduleNames(); len(names) > 0 {
		b.WriteString("\n\nSchedule entry counts: ")
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %d", name, doc.ScheduleCount(name)))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(".")
	}
	return b.String()
}
