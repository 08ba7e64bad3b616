package topup

import (
	"errors"

	"github.com/zhouzirui/topup-bot/internal/model/chat"
)

const (
	welcomeText         = "Welcome to Free Fire Top-up Bot!\nPlease send your Free Fire UID to proceed."
	invalidAccountText  = "Please send a valid numeric Free Fire UID (at least 8 digits)."
	accountReceivedText = "UID received: %s\nSelect Amount:"
	amountSelectedText  = "Amount selected: %s\nSelect Payment Channel:"
	paymentSelectedText = "Payment method selected: %s\n\nPlease send your Serial and PIN voucher.\nExample:\nBD123456789012+ABCD-EFGH-IJKL-MNOP"
	emptyVoucherText    = "Please send the Serial + PIN."
	invalidVoucherText  = "Invalid Serial or PIN format. Please send again."
	processingText      = "Processing your top-up, please wait..."
	successCaption      = "Top-up successful!\nUID: %s\nAmount: %s\nPayment: %s"
	knownFailureText    = "Failed: %s"
	unknownFailureText  = "An error occurred while processing your top-up. Please try again later."
	resetText           = "Your top-up was cancelled. Send /start to begin again."
	startOverText       = "Please use /start to begin."
	startOverButtonText = "Please start with /start"
	outOfSequenceText   = "Invalid action or out of sequence"
	internalFailureText = "Something went wrong, please try again."
)

// RejectionText is what a gateway shows for an error returned by Handle.
// It is empty when Handle already answered the user.
func RejectionText(err error, kind chat.EventKind) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoSession):
		if kind == chat.EventSelection {
			return startOverButtonText
		}
		return startOverText
	case errors.Is(err, ErrOutOfSequence):
		return outOfSequenceText
	case errors.Is(err, ErrInvalidAccountID), errors.Is(err, ErrInvalidVoucher):
		return ""
	default:
		return internalFailureText
	}
}
