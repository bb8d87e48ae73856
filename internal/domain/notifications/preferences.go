package notifications

// GlobalDefault applies when neither the user nor the role says otherwise.
var GlobalDefault = Preference{InApp: true, Email: false}

// Defaults maps role -> notification type (or AnyType) -> preference.
type Defaults map[string]map[string]Preference

// BuiltinDefaults turns on email for the notifications each role has to act on.
func BuiltinDefaults() Defaults {
	both := Preference{InApp: true, Email: true}
	return Defaults{
		"employee": {
			TypeWorkRequestApproved: both,
			TypeWorkRequestRejected: both,
			TypeTaskAssigned:        both,
		},
		"line_manager": {
			TypeResourceRequestSubmitted: both,
			TypeWorkRequestSubmitted:     both,
		},
		"pm": {
			TypeResourceRequestApproved: both,
			TypeResourceRequestRejected: both,
			TypeTaskCompleted:           both,
		},
		"hr": {
			TypeResourceRequestPendingHR: both,
			TypeWorkRequestPendingHR:     both,
		},
	}
}

// Set overrides one entry, creating the role map as needed.
func (d Defaults) Set(role, ntype string, pref Preference) {
	if d[role] == nil {
		d[role] = map[string]Preference{}
	}
	d[role][ntype] = pref
}

// Role returns the role-level preference for ntype and whether one exists.
func (d Defaults) Role(role, ntype string) (Preference, bool) {
	byType := d[role]
	if byType == nil {
		return Preference{}, false
	}
	if pref, ok := byType[ntype]; ok {
		return pref, true
	}
	if pref, ok := byType[AnyType]; ok {
		return pref, true
	}
	return Preference{}, false
}

// Resolve picks the user override, then the role default, then GlobalDefault.
func (d Defaults) Resolve(role, ntype string, override *Preference) Preference {
	if override != nil {
		return *override
	}
	if pref, ok := d.Role(role, ntype); ok {
		return pref
	}
	return GlobalDefault
}
