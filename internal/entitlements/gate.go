package entitlements

type ActionKind string

const (
	// ActionAddClient is the metered creation; it is the only action the
	// usage limit applies to.
	ActionAddClient ActionKind = "add_client"
	// ActionEditRecords covers mutations of records the account already
	// owns (edit, delete, stage changes).
	ActionEditRecords ActionKind = "edit_records"
)

type Action struct {
	Kind ActionKind
}

// CanPerform reports whether the decision permits the action. It is a pure
// predicate: callers consult it before invoking a mutation, it performs
// nothing itself.
func CanPerform(decision Decision, action Action) bool {
	if !decision.CanModify {
		return false
	}
	if action.Kind != ActionAddClient {
		return true
	}
	if decision.UsageLimit == UsageUnlimited {
		return true
	}
	return decision.UsageCount < decision.UsageLimit
}
