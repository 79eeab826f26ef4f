package models

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&EarnedBadge{},
		&EcoTask{},
		&TaskCompletion{},
		&LeaderboardSnapshot{},
		&APIKey{},
	}
}
