package catalog

// AmountCode identifies one top-up package offered by the storefront.
type AmountCode string

// PaymentMethod identifies one voucher channel accepted by the storefront.
type PaymentMethod string

const (
	Amount25      AmountCode = "amount_25"
	Amount50      AmountCode = "amount_50"
	Amount115     AmountCode = "amount_115"
	Amount240     AmountCode = "amount_240"
	Amount610     AmountCode = "amount_610"
	Amount1240    AmountCode = "amount_1240"
	Amount2530    AmountCode = "amount_2530"
	AmountWeekly  AmountCode = "amount_weekly"
	AmountMonthly AmountCode = "amount_monthly"
)

const (
	PayUniPin PaymentMethod = "pay_unipin"
	PayUPCard PaymentMethod = "pay_upcard"
)

// Option is a single button a chat gateway renders.
type Option struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var amountOptions = []Option{
	{Code: string(Amount25), Label: "25 Diamond"},
	{Code: string(Amount50), Label: "50 Diamond"},
	{Code: string(Amount115), Label: "115 Diamond"},
	{Code: string(Amount240), Label: "240 Diamond"},
	{Code: string(Amount610), Label: "610 Diamond"},
	{Code: string(Amount1240), Label: "1240 Diamond"},
	{Code: string(Amount2530), Label: "2530 Diamond"},
	{Code: string(AmountWeekly), Label: "Weekly Membership"},
	{Code: string(AmountMonthly), Label: "Monthly Membership"},
}

var paymentOptions = []Option{
	{Code: string(PayUniPin), Label: "UniPin Voucher"},
	{Code: string(PayUPCard), Label: "UP Gift Card"},
}

// Store exposes the closed option sets to the state machine and handlers.
type Store interface {
	Amounts() []Option
	PaymentMethods() []Option
	LookupAmount(code string) (AmountCode, string, bool)
	LookupPayment(code string) (PaymentMethod, string, bool)
}

// MemoryStore implements Store with fixed in-memory slices.
type MemoryStore struct {
	amounts  []Option
	payments []Option
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied options.
func NewMemoryStore(amounts, payments []Option) *MemoryStore {
	return &MemoryStore{
		amounts:  append([]Option(nil), amounts...),
		payments: append([]Option(nil), payments...),
	}
}

// Default returns the store holding the storefront's current packages.
func Default() *MemoryStore {
	return NewMemoryStore(amountOptions, paymentOptions)
}

// Amounts returns a copy of the amount options in display order.
func (s *MemoryStore) Amounts() []Option {
	return append([]Option(nil), s.amounts...)
}

// PaymentMethods returns a copy of the payment options in display order.
func (s *MemoryStore) PaymentMethods() []Option {
	return append([]Option(nil), s.payments...)
}

// LookupAmount resolves a raw selection against the amount allow-list.
func (s *MemoryStore) LookupAmount(code string) (AmountCode, string, bool) {
	label, ok := find(s.amounts, code)
	return AmountCode(code), label, ok
}

// LookupPayment resolves a raw selection against the payment allow-list.
func (s *MemoryStore) LookupPayment(code string) (PaymentMethod, string, bool) {
	label, ok := find(s.payments, code)
	return PaymentMethod(code), label, ok
}

func find(items []Option, code string) (string, bool) {
	for _, item := range items {
		if item.Code == code {
			return item.Label, true
		}
	}
	return "", false
}
