package main

// Achievement definitions
type AchievementDef struct {
	ID          string
	Name        string
	Description string
}

var Achievements = []AchievementDef{
	{"first_berry", "First Harvest", "Collect your first berry"},
	{"forager", "Forager", "Collect 100 berries lifetime"},
	{"hoarder", "Hoarder", "Collect 1000 berries lifetime"},
	{"regicide", "Regicide", "Kill your first queen"},
	{"queenslayer", "Queenslayer", "Kill 50 queens lifetime"},
	{"escort", "Snail Whisperer", "Push the snail 100 steps lifetime"},
	{"breadwinner", "Breadwinner", "Collect 10 berries in a single game"},
	{"victor", "Victor", "Win 10 games"},
	{"veteran", "Veteran", "Play 100 games"},
	{"survivor", "Survivor", "Play for 1 hour total"},
}

// CheckAchievements checks whether an account's post-match aggregates unlock
// anything new. Returns the newly unlocked definitions.
func CheckAchievements(db *DB, playerID int64, matchBerries, matchKills int, won bool) []AchievementDef {
	if db == nil {
		return nil
	}

	stats, err := db.GetStats(playerID)
	if err != nil || stats == nil {
		return nil
	}

	existing, err := db.GetAchievements(playerID)
	if err != nil {
		return nil
	}
	has := make(map[string]bool, len(existing))
	for _, a := range existing {
		has[a] = true
	}

	var unlocked []AchievementDef

	check := func(id string) bool {
		if has[id] {
			return false
		}
		switch id {
		case "first_berry":
			return stats.Berries >= 1
		case "forager":
			return stats.Berries >= 100
		case "hoarder":
			return stats.Berries >= 1000
		case "regicide":
			return stats.QueenKills >= 1
		case "queenslayer":
			return stats.QueenKills >= 50
		case "escort":
			return stats.SnailMoves >= 100
		case "breadwinner":
			return matchBerries >= 10
		case "victor":
			return stats.Wins >= 10
		case "veteran":
			return stats.Games >= 100
		case "survivor":
			return stats.Playtime >= 3600
		}
		return false
	}

	for _, def := range Achievements {
		if check(def.ID) {
			if newlyUnlocked, err := db.UnlockAchievement(playerID, def.ID); err == nil && newlyUnlocked {
				unlocked = append(unlocked, def)
			}
		}
	}

	return unlocked
}
