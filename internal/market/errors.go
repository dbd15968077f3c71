package market

// Error is a flat failure kind. Every public marketplace operation fails with exactly one of
// these; the string value is the kind's wire name.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrParse                 Error = "ParseError"
	ErrLog                   Error = "LogError"
	ErrUnauthorized          Error = "Unauthorized"
	ErrInvalidExchange       Error = "InvalidExchange"
	ErrOnlyAccount           Error = "OnlyAccount"
	ErrInsufficientSupply    Error = "InsufficientSupply"
	ErrInvalidRate           Error = "InvalidRate"
	ErrNotListed             Error = "NotListed"
	ErrInsufficientDeposits  Error = "InsufficientDeposits"
	ErrInsufficientPayment   Error = "InsufficientPayment"
	ErrPaymentNotRequired    Error = "PaymentNotRequired"
	ErrInvalidDepositData    Error = "InvalidDepositData"
	ErrInvalidListToken      Error = "InvalidListToken"
	ErrInvalidPaymentToken   Error = "InvalidPaymentToken"
	ErrInvalidCommission     Error = "InvalidCommission"
	ErrInvalidSupply         Error = "InvalidSupply"
	ErrInvalidExchangeRates  Error = "InvalidExchangeRates"
	ErrCis2Withdraw          Error = "Cis2WithdrawError"
	ErrCis2Settlement        Error = "Cis2SettlementError"
	ErrCis2Payment           Error = "Cis2PaymentError"
	ErrCis2CommissionPayment Error = "Cis2CommissionPaymentError"
	ErrCCDPayment            Error = "CCDPaymentError"
	ErrCCDCommissionPayment  Error = "CCDCommissionPaymentError"
	ErrNotDeposited          Error = "NotDeposited"
)

// IsTransferError reports whether the kind means an external transfer failed and the
// operation was rolled back.
func (e Error) IsTransferError() bool {
	switch e {
	case ErrCis2Withdraw, ErrCis2Settlement, ErrCis2Payment, ErrCis2CommissionPayment,
		ErrCCDPayment, ErrCCDCommissionPayment:
		return true
	}
	return false
}
