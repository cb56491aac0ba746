package models

// All lists every table the engine migrates.
func All() []any {
	return []any{
		&User{},
		&Plan{},
		&Subscription{},
		&Notification{},
		&PushRegistration{},
	}
}
