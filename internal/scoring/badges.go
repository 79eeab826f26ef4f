package scoring

type BadgeKind string

const (
	BadgeKindPoints   BadgeKind = "points"
	BadgeKindStreak   BadgeKind = "streak"
	BadgeKindTasks    BadgeKind = "tasks"
	BadgeKindCategory BadgeKind = "category"
)

// Badge is a catalog entry. Earned badges are recorded separately per user.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	Kind        BadgeKind `json:"kind"`
	Category    string    `json:"category,omitempty"`
	Threshold   int       `json:"threshold"`
}

var catalog = []Badge{
	{ID: "first_task", Name: "First Steps", Icon: "🌱", Description: "Complete your first eco-task", Kind: BadgeKindTasks, Threshold: 1},
	{ID: "points_100", Name: "Eco Starter", Icon: "🍃", Description: "Earn 100 points", Kind: BadgeKindPoints, Threshold: 100},
	{ID: "points_500", Name: "Eco Warrior", Icon: "🌿", Description: "Earn 500 points", Kind: BadgeKindPoints, Threshold: 500},
	{ID: "points_1000", Name: "Eco Champion", Icon: "🌳", Description: "Earn 1000 points", Kind: BadgeKindPoints, Threshold: 1000},
	{ID: "points_5000", Name: "Planet Protector", Icon: "🌍", Description: "Earn 5000 points", Kind: BadgeKindPoints, Threshold: 5000},
	{ID: "streak_7", Name: "Week Streak", Icon: "🔥", Description: "Stay active 7 days in a row", Kind: BadgeKindStreak, Threshold: 7},
	{ID: "streak_30", Name: "Month Streak", Icon: "⚡", Description: "Stay active 30 days in a row", Kind: BadgeKindStreak, Threshold: 30},
	{ID: "recycler", Name: "Recycler", Icon: "♻️", Description: "Complete 5 recycling tasks", Kind: BadgeKindCategory, Category: "recycling", Threshold: 5},
	{ID: "energy_saver", Name: "Energy Saver", Icon: "💡", Description: "Complete 5 energy tasks", Kind: BadgeKindCategory, Category: "energy", Threshold: 5},
	{ID: "water_guardian", Name: "Water Guardian", Icon: "💧", Description: "Complete 5 water tasks", Kind: BadgeKindCategory, Category: "water", Threshold: 5},
	{ID: "tree_hugger", Name: "Tree Hugger", Icon: "🌲", Description: "Plant 3 trees", Kind: BadgeKindCategory, Category: "tree-planting", Threshold: 3},
	{ID: "clean_air", Name: "Clean Air", Icon: "🌬️", Description: "Complete 5 pollution tasks", Kind: BadgeKindCategory, Category: "pollution", Threshold: 5},
}

// Catalog returns a copy of the static badge catalog.
func Catalog() []Badge {
	out := make([]Badge, len(catalog))
	copy(out, catalog)
	return out
}

// LookupBadge finds a catalog badge by id.
func LookupBadge(id string) (Badge, bool) {
	for _, b := range catalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// Progress is the slice of user state the badge rules look at.
type Progress struct {
	TotalPoints    int
	Streak         int
	TasksCompleted int
	CategoryCounts map[string]int
	Earned         map[string]bool
}

// CheckBadges returns catalog badges whose threshold is met and which are not
// yet in p.Earned. It does not modify p.
func CheckBadges(p Progress) []Badge {
	var newly []Badge
	for _, b := range catalog {
		if p.Earned[b.ID] {
			continue
		}
		if qualifies(b, p) {
			newly = append(newly, b)
		}
	}
	return newly
}

func qualifies(b Badge, p Progress) bool {
	switch b.Kind {
	case BadgeKindPoints:
		return p.TotalPoints >= b.Threshold
	case BadgeKindStreak:
		return p.Streak >= b.Threshold
	case BadgeKindTasks:
		return p.TasksCompleted >= b.Threshold
	case BadgeKindCategory:
		return p.CategoryCounts[b.Category] >= b.Threshold
	}
	return false
}
