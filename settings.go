package costbasis

// Settings is the per-owner accounting policy. It is an explicit value
// passed into every allocator and detector call, never a hidden global.
type Settings struct {
	Method            AllocationMethod `json:"method"`
	Jurisdiction      string           `json:"jurisdiction"`
	WashSaleEnabled   bool             `json:"wash_sale_enabled"`
	WashSaleWindow    int              `json:"wash_sale_window_days"`
	HoldingPeriodDays int              `json:"holding_period_days"`
	ReportingCurrency string           `json:"reporting_currency"`
}

// DefaultSettings returns the baseline policy: FIFO, US jurisdiction,
// wash-sale rule on with a 30-day window, 365-day long-term threshold,
// USD reporting.
func DefaultSettings() Settings {
	return Settings{
		Method:            FIFO,
		Jurisdiction:      "US",
		WashSaleEnabled:   true,
		WashSaleWindow:    30,
		HoldingPeriodDays: 365,
		ReportingCurrency: USD,
	}
}

// SettingsProvider supplies per-owner settings. Implementations outside this
// core typically back it with a user-preferences table.
type SettingsProvider interface {
	SettingsFor(owner string) Settings
}

// StaticSettings is a SettingsProvider that returns the same settings for
// every owner. It is what the CLI and tests use.
type StaticSettings Settings

func (s StaticSettings) SettingsFor(string) Settings { return Settings(s) }
