package main

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAccountAndLookup(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreateAccount("worker_bee", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 {
		t.Fatal("expected nonzero id")
	}

	account, err := db.GetAccountByUsername("worker_bee")
	if err != nil || account == nil {
		t.Fatalf("lookup: %v %v", account, err)
	}
	if account.ID != id || account.PassHash != "hash" {
		t.Errorf("unexpected account: %+v", account)
	}

	missing, err := db.GetAccountByUsername("nobody")
	if err != nil || missing != nil {
		t.Errorf("absent account should be nil, nil: %v %v", missing, err)
	}

	exists, _ := db.UsernameExists("worker_bee")
	if !exists {
		t.Error("username should exist")
	}
	if _, err := db.CreateAccount("worker_bee", "other"); err == nil {
		t.Error("duplicate username should fail")
	}
}

func TestStatsAccumulate(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateAccount("bee", "h")

	stats, err := db.GetStats(id)
	if err != nil || stats == nil {
		t.Fatalf("fresh stats: %v %v", stats, err)
	}
	if stats.Games != 0 {
		t.Errorf("fresh stats should be zero: %+v", stats)
	}

	if err := db.UpdateStatsAfterMatch(id, true, 12, 3, 0, 240.5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := db.UpdateStatsAfterMatch(id, false, 5, 0, 2, 100); err != nil {
		t.Fatalf("update: %v", err)
	}

	stats, _ = db.GetStats(id)
	if stats.Games != 2 || stats.Wins != 1 || stats.Losses != 1 {
		t.Errorf("unexpected game counts: %+v", stats)
	}
	if stats.Berries != 17 || stats.SnailMoves != 3 || stats.QueenKills != 2 {
		t.Errorf("unexpected contribution totals: %+v", stats)
	}
	if stats.Playtime != 340.5 {
		t.Errorf("expected playtime 340.5, got %v", stats.Playtime)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	db := openTestDB(t)

	alice, _ := db.CreateAccount("alice", "h")
	bob, _ := db.CreateAccount("bob", "h")
	db.UpdateStatsAfterMatch(alice, true, 3, 0, 0, 60)
	db.UpdateStatsAfterMatch(bob, true, 9, 0, 0, 60)
	db.UpdateStatsAfterMatch(alice, true, 1, 0, 0, 60)

	byWins, err := db.GetLeaderboard("wins", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(byWins) != 2 || byWins[0].Username != "alice" || byWins[0].Rank != 1 {
		t.Errorf("unexpected wins ordering: %+v", byWins)
	}

	byBerries, _ := db.GetLeaderboard("berries", 10)
	if byBerries[0].Username != "bob" {
		t.Errorf("unexpected berries ordering: %+v", byBerries)
	}

	// Unknown columns fall back to wins instead of erroring
	byJunk, err := db.GetLeaderboard("; DROP TABLE stats", 10)
	if err != nil {
		t.Fatalf("fallback ordering: %v", err)
	}
	if byJunk[0].Username != "alice" {
		t.Errorf("unexpected fallback ordering: %+v", byJunk)
	}
}

func TestMatchRecording(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateAccount("bee", "h")

	matchID, err := db.RecordMatch("blue", "economic", 312.7)
	if err != nil || matchID == 0 {
		t.Fatalf("record match: %d %v", matchID, err)
	}
	if err := db.RecordMatchPlayer(matchID, id, "blue", "worker", 12, 0, 0); err != nil {
		t.Fatalf("record match player: %v", err)
	}
	// Same player twice in one match violates the primary key
	if err := db.RecordMatchPlayer(matchID, id, "blue", "worker", 0, 0, 0); err == nil {
		t.Error("duplicate match player should fail")
	}
}

func TestAchievementUnlockOnce(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateAccount("bee", "h")

	fresh, err := db.UnlockAchievement(id, "first_berry")
	if err != nil || !fresh {
		t.Fatalf("first unlock should be new: %v %v", fresh, err)
	}
	again, err := db.UnlockAchievement(id, "first_berry")
	if err != nil || again {
		t.Errorf("repeat unlock should not be new: %v %v", again, err)
	}

	ids, _ := db.GetAchievements(id)
	if len(ids) != 1 || ids[0] != "first_berry" {
		t.Errorf("unexpected unlocks: %v", ids)
	}
}

func TestCheckAchievementsAfterMatch(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateAccount("bee", "h")
	db.UpdateStatsAfterMatch(id, true, 11, 0, 1, 120)

	unlocked := CheckAchievements(db, id, 11, 1, true)
	got := make(map[string]bool, len(unlocked))
	for _, def := range unlocked {
		got[def.ID] = true
	}
	for _, want := range []string{"first_berry", "regicide", "breadwinner"} {
		if !got[want] {
			t.Errorf("expected %s to unlock, got %v", want, got)
		}
	}
	if got["victor"] {
		t.Error("victor needs 10 wins")
	}

	// A second identical match unlocks nothing new
	if again := CheckAchievements(db, id, 11, 1, true); len(again) != 0 {
		t.Errorf("repeat check should unlock nothing, got %v", again)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if v := db.GetSetting("absent"); v != "" {
		t.Errorf("absent key should be empty, got %q", v)
	}
	if err := db.SetSetting("motd", "welcome"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.SetSetting("motd", "updated"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if v := db.GetSetting("motd"); v != "updated" {
		t.Errorf("expected updated, got %q", v)
	}
}
