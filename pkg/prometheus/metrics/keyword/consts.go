package keyword

var (
	CreditSplits      = "naming_credit_splits_total"
	CreditReplenishes = "naming_credit_replenishes_total"
	CreditDecrements  = "naming_credit_decrements_total"
	CreditIssued      = "naming_credit_issued_total"
	HandlesCreated    = "naming_handles_created_total"
	HandlesReleased   = "naming_handles_released_total"
	HandlesMoved      = "naming_handles_credit_moved_total"
	ReplenishErrors   = "naming_replenish_errors_total"
)
