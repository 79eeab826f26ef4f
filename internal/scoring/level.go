// Package scoring holds the pure point, level, badge and streak rules.
package scoring

// levelThresholds[i] is the smallest total that reaches level i+2.
var levelThresholds = []int{100, 300, 600, 1000, 1500}

// CalculateLevel maps a point total to a level. Levels 1-5 use fixed bands,
// after which every 300 points is one level.
func CalculateLevel(totalPoints int) int {
	if totalPoints < 0 {
		totalPoints = 0
	}
	for i, threshold := range levelThresholds {
		if totalPoints < threshold {
			return i + 1
		}
	}
	return totalPoints/300 + 3
}

// NextLevelThreshold returns the smallest total that raises the level by one.
func NextLevelThreshold(totalPoints int) int {
	level := CalculateLevel(totalPoints)
	if level <= len(levelThresholds) {
		return levelThresholds[level-1]
	}
	return (level + 1 - 3) * 300
}
