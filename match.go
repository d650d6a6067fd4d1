package main

// Team identifies one of the two hives
type Team string

const (
	TeamBlue Team = "blue"
	TeamGold Team = "gold"
)

// Opponent returns the other team
func (t Team) Opponent() Team {
	if t == TeamBlue {
		return TeamGold
	}
	return TeamBlue
}

// Role governs which actions a player may perform
type Role string

const (
	RoleQueen   Role = "queen"
	RoleWorker  Role = "worker"
	RoleSoldier Role = "soldier"
)

// GameStatus represents the lifecycle of a game
type GameStatus string

const (
	StatusWaiting GameStatus = "waiting"
	// StatusStarting is reserved for a pre-game countdown; current logic
	// moves straight from waiting to playing.
	StatusStarting GameStatus = "starting"
	StatusPlaying  GameStatus = "playing"
	StatusEnded    GameStatus = "ended"
)

// Win reasons carried in the gameOver event
const (
	ReasonEconomic = "economic"
	ReasonMilitary = "military"
	ReasonSnail    = "snail"
)

// AssignTeamRole picks a team and role for a new player from the current
// roster. Pure function of the roster, deterministic: the smaller team wins
// (ties favor blue); the first member of a team — or a team whose queen seat
// is vacant — becomes queen; otherwise workers and soldiers are balanced,
// with ties going to worker. Disconnected players still hold their seats, so
// inactive records count.
func AssignTeamRole(players map[string]*Player) (Team, Role) {
	blue, gold := 0, 0
	for _, p := range players {
		if p.Team == TeamBlue {
			blue++
		} else {
			gold++
		}
	}

	team := TeamBlue
	if gold < blue {
		team = TeamGold
	}

	queens, workers, soldiers := 0, 0, 0
	for _, p := range players {
		if p.Team != team {
			continue
		}
		switch p.Role {
		case RoleQueen:
			queens++
		case RoleWorker:
			workers++
		case RoleSoldier:
			soldiers++
		}
	}

	if queens == 0 {
		return team, RoleQueen
	}
	if workers <= soldiers {
		return team, RoleWorker
	}
	return team, RoleSoldier
}

// Arena extents for spawn placement. The arena is centered on the origin
// with blue spawning on the negative X side and gold on the positive.
const (
	arenaHalfWidth = 20.0
	spawnInset     = 0.8
	spawnJitter    = 4.0
)

// SpawnPosition returns a team-dependent spawn point with a little jitter so
// simultaneous joiners don't stack exactly.
func SpawnPosition(team Team) Vec3 {
	x := arenaHalfWidth * spawnInset
	if team == TeamBlue {
		x = -x
	}
	z := (randFloat() - 0.5) * spawnJitter
	return Vec3{round2(x), 0, round2(z)}
}
