package domain

// Settings holds the runtime configuration shared by all sessions: the crawl
// cadence, the classifier thresholds and keyword list, and client-facing
// notification preferences. Settings are persisted across restarts and any
// change is broadcast to every connected session.
type Settings struct {
	// CrawlIntervalMinutes is the scheduled crawl cadence. Changes take
	// effect on the next scheduler cycle.
	CrawlIntervalMinutes int `json:"crawling_interval"`

	// Keywords are matched case-insensitively against product titles by the
	// classifier.
	Keywords []string `json:"keywords"`

	EnableNotifications bool `json:"enable_notifications"`
	EnableSound         bool `json:"enable_sound"`

	// Per-category client-side repeat counts for notification sounds.
	SuperAlertRepeat       int `json:"super_alert_repeat"`
	ElectronicsAlertRepeat int `json:"electronics_alert_repeat"`
	BestAlertRepeat        int `json:"best_alert_repeat"`
	KeywordAlertRepeat     int `json:"keyword_alert_repeat"`

	// Classifier discount thresholds, in percent.
	SuperThreshold       int `json:"super_threshold"`
	ElectronicsThreshold int `json:"electronics_threshold"`
	BestThreshold        int `json:"best_threshold"`
}

// DefaultSettings returns the settings used when nothing has been persisted.
func DefaultSettings() Settings {
	return Settings{
		CrawlIntervalMinutes:   5,
		Keywords:               []string{},
		EnableNotifications:    true,
		EnableSound:            true,
		SuperAlertRepeat:       3,
		ElectronicsAlertRepeat: 2,
		BestAlertRepeat:        2,
		KeywordAlertRepeat:     3,
		SuperThreshold:         70,
		ElectronicsThreshold:   50,
		BestThreshold:          40,
	}
}

// SettingsPatch is a partial settings update: nil fields are left unchanged.
// Used by both the REST endpoint and the update-settings websocket event.
type SettingsPatch struct {
	CrawlIntervalMinutes   *int     `json:"crawling_interval,omitempty"`
	Keywords               []string `json:"keywords,omitempty"`
	EnableNotifications    *bool    `json:"enable_notifications,omitempty"`
	EnableSound            *bool    `json:"enable_sound,omitempty"`
	SuperAlertRepeat       *int     `json:"super_alert_repeat,omitempty"`
	ElectronicsAlertRepeat *int     `json:"electronics_alert_repeat,omitempty"`
	BestAlertRepeat        *int     `json:"best_alert_repeat,omitempty"`
	KeywordAlertRepeat     *int     `json:"keyword_alert_repeat,omitempty"`
	SuperThreshold         *int     `json:"super_threshold,omitempty"`
	ElectronicsThreshold   *int     `json:"electronics_threshold,omitempty"`
	BestThreshold          *int     `json:"best_threshold,omitempty"`
}

// Apply merges the patch into s and returns the result. The receiver is not
// modified.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.CrawlIntervalMinutes != nil {
		s.CrawlIntervalMinutes = *p.CrawlIntervalMinutes
	}
	if p.Keywords != nil {
		s.Keywords = p.Keywords
	}
	if p.EnableNotifications != nil {
		s.EnableNotifications = *p.EnableNotifications
	}
	if p.EnableSound != nil {
		s.EnableSound = *p.EnableSound
	}
	if p.SuperAlertRepeat != nil {
		s.SuperAlertRepeat = *p.SuperAlertRepeat
	}
	if p.ElectronicsAlertRepeat != nil {
		s.ElectronicsAlertRepeat = *p.ElectronicsAlertRepeat
	}
	if p.BestAlertRepeat != nil {
		s.BestAlertRepeat = *p.BestAlertRepeat
	}
	if p.KeywordAlertRepeat != nil {
		s.KeywordAlertRepeat = *p.KeywordAlertRepeat
	}
	if p.SuperThreshold != nil {
		s.SuperThreshold = *p.SuperThreshold
	}
	if p.ElectronicsThreshold != nil {
		s.ElectronicsThreshold = *p.ElectronicsThreshold
	}
	if p.BestThreshold != nil {
		s.BestThreshold = *p.BestThreshold
	}
	return s
}
