package purchase

import (
	"fmt"

	"github.com/zhouzirui/topup-bot/internal/model/catalog"
)

// Selectors is the storefront UI contract. Amount and payment controls are
// addressed through data attributes keyed by catalog codes.
type Selectors struct {
	LoginInput     string `env:"SELECTOR_LOGIN_INPUT" envDefault:"#uidInput"`
	LoginButton    string `env:"SELECTOR_LOGIN_BUTTON" envDefault:"#loginBtn"`
	LoginConfirmed string `env:"SELECTOR_LOGIN_CONFIRMED" envDefault:"#playerName"`
	AmountAttr     string `env:"SELECTOR_AMOUNT_ATTR" envDefault:"data-amount"`
	ProceedPayment string `env:"SELECTOR_PROCEED_PAYMENT" envDefault:"#proceedPayment"`
	PaymentAttr    string `env:"SELECTOR_PAYMENT_ATTR" envDefault:"data-pay"`
	SerialInput    string `env:"SELECTOR_SERIAL_INPUT" envDefault:"#serialInput"`
	PinInput       string `env:"SELECTOR_PIN_INPUT" envDefault:"#pinInput"`
	Submit         string `env:"SELECTOR_SUBMIT" envDefault:"#submitVoucher"`
	SuccessMarker  string `env:"SELECTOR_SUCCESS_MARKER" envDefault:".success-message"`
	ErrorMarker    string `env:"SELECTOR_ERROR_MARKER" envDefault:".error-message"`
}

// DefaultSelectors returns the selectors of the live storefront.
func DefaultSelectors() Selectors {
	return Selectors{
		LoginInput:     "#uidInput",
		LoginButton:    "#loginBtn",
		LoginConfirmed: "#playerName",
		AmountAttr:     "data-amount",
		ProceedPayment: "#proceedPayment",
		PaymentAttr:    "data-pay",
		SerialInput:    "#serialInput",
		PinInput:       "#pinInput",
		Submit:         "#submitVoucher",
		SuccessMarker:  ".success-message",
		ErrorMarker:    ".error-message",
	}
}

// AmountControl addresses the button for an allow-listed amount.
func (s Selectors) AmountControl(code catalog.AmountCode) string {
	return fmt.Sprintf(`button[%s="%s"]`, s.AmountAttr, code)
}

// PaymentControl addresses the button for an allow-listed payment method.
func (s Selectors) PaymentControl(method catalog.PaymentMethod) string {
	return fmt.Sprintf(`button[%s="%s"]`, s.PaymentAttr, method)
}
