package domain

// Payment statuses. PAID, FAILED and CANCELLED are terminal; the settlement
// engine only ever selects SCHEDULED rows, so terminal rows are never touched
// again.
const (
	PaymentScheduled = "SCHEDULED"
	PaymentPending   = "PENDING"
	PaymentPaid      = "PAID"
	PaymentFailed    = "FAILED"
	PaymentCancelled = "CANCELLED"
)

// Failure reasons carried to the user-facing notification.
const (
	FailReasonInsufficient    = "insufficient balance"
	FailReasonAccountNotFound = "account not found"
	FailReasonSystem          = "system error"
)

const (
	TxTypeDeposit      = "DEPOSIT"
	TxTypeAutopayDebit = "AUTOPAY_DEBIT"
)

const (
	NotifPaymentPaid   = "PAYMENT_PAID"
	NotifPaymentFailed = "PAYMENT_FAILED"
	NotifDeposit       = "DEPOSIT"
)

// OTP purposes; the store keys entries by purpose+address so a signup code
// cannot be replayed to link a bank.
const (
	OTPPurposeVerifyEmail = "VERIFY_EMAIL"
	OTPPurposeLinkBank    = "LINK_BANK"
)

const PaymentMethodOther = "Other"
