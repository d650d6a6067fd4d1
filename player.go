package main

import "time"

// Vec3 is a right-handed 3-component vector; rotation uses Euler angles
// per axis. Marshals as a plain 3-element array on the wire.
type Vec3 [3]float64

// Rounded returns the vector rounded to two decimal places
func (v Vec3) Rounded() Vec3 {
	return Vec3{round2(v[0]), round2(v[1]), round2(v[2])}
}

// Player is a logical participant. The id is durable across reconnects; the
// record outlives its transport connection until a grace sweep removes it.
type Player struct {
	ID       string
	Team     Team
	Role     Role
	Position Vec3
	Rotation Vec3
	Active   bool

	// AuthPlayerID links to an account row; 0 = guest
	AuthPlayerID int64

	JoinedAt time.Time

	// Per-match tallies, flushed to stats on game over
	Berries    int
	SnailMoves int
	QueenKills int
}

// NewPlayer creates an active player at its team spawn point
func NewPlayer(id string, team Team, role Role) *Player {
	return &Player{
		ID:       id,
		Team:     team,
		Role:     role,
		Position: SpawnPosition(team),
		Active:   true,
		JoinedAt: time.Now(),
	}
}

// ToState converts to the wire representation
func (p *Player) ToState() PlayerState {
	return PlayerState{
		ID:       p.ID,
		Team:     p.Team,
		Role:     p.Role,
		Position: p.Position.Rounded(),
		Rotation: p.Rotation.Rounded(),
		Active:   p.Active,
	}
}
