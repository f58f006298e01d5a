package models

type ExpenseStatus string

const (
	ExpenseStatusPending     ExpenseStatus = "pending"
	ExpenseStatusApproved    ExpenseStatus = "approved"
	ExpenseStatusPaid        ExpenseStatus = "paid"
	ExpenseStatusRejected    ExpenseStatus = "rejected"
	ExpenseStatusPendingInfo ExpenseStatus = "pending_info"
	ExpenseStatusDeleted     ExpenseStatus = "deleted"
)

func (s ExpenseStatus) IsValid() bool {
	switch s {
	case ExpenseStatusPending, ExpenseStatusApproved, ExpenseStatusPaid,
		ExpenseStatusRejected, ExpenseStatusPendingInfo, ExpenseStatusDeleted:
		return true
	}
	return false
}

// CountsTowardExpenditure reports whether an expense in this status reduces
// the fund balance.
func (s ExpenseStatus) CountsTowardExpenditure() bool {
	return s == ExpenseStatusApproved || s == ExpenseStatusPaid
}

func (s ExpenseStatus) IsTerminal() bool {
	return s == ExpenseStatusPaid || s == ExpenseStatusRejected || s == ExpenseStatusDeleted
}

// CanReview reports whether an approver may approve, reject or ask for more
// information on an expense in this status.
func (s ExpenseStatus) CanReview() bool {
	return s == ExpenseStatusPending || s == ExpenseStatusPendingInfo
}

// ArabicLabel is the display name used in bilingual responses.
func (s ExpenseStatus) ArabicLabel() string {
	switch s {
	case ExpenseStatusPending:
		return "في انتظار الموافقة"
	case ExpenseStatusApproved:
		return "معتمد"
	case ExpenseStatusPaid:
		return "مدفوع"
	case ExpenseStatusRejected:
		return "مرفوض"
	case ExpenseStatusPendingInfo:
		return "بحاجة لمعلومات إضافية"
	case ExpenseStatusDeleted:
		return "محذوف"
	default:
		return string(s)
	}
}

// ExpenseStatusesCounted lists the statuses summed into total_expenses.
var ExpenseStatusesCounted = []ExpenseStatus{ExpenseStatusApproved, ExpenseStatusPaid}

// DiyaStatusesCounted lists the internal diya statuses summed into total_internal_diya.
var DiyaStatusesCounted = []string{DiyaStatusPaid, DiyaStatusPartiallyPaid, DiyaStatusCompleted}
