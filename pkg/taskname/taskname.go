package taskname

const (
	// Campaign tasks
	CampaignCloseExpired    = "campaign:close:expired"
	CampaignAdvanceSchedule = "campaign:advance:schedule"

	// Review tasks
	ReviewDeadlineReminder = "review:deadline:reminder"

	// Payment tasks
	PaymentExpireOverdue = "payment:expire:overdue"
)

// All lists every periodic task in the order a scan runs them.
var All = []string{
	CampaignCloseExpired,
	CampaignAdvanceSchedule,
	ReviewDeadlineReminder,
	PaymentExpireOverdue,
}
