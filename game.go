package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Win conditions and roster thresholds
const (
	BerryWinCount     = 12
	MilitaryWinScore  = 3
	SnailStart        = 50
	SnailGoalGold     = 0
	SnailGoalBlue     = 100
	MinPlayersToStart = 2
	maxPlayers        = 20
)

// Grace delays and sweep periods. Package vars so tests can shorten them.
// Involuntary disconnects get a long window so a reconnecting player keeps
// their team and role; voluntary leaves only need in-flight broadcasts to
// settle before the record goes away.
var (
	DisconnectGrace   = 30 * time.Second
	LeaveGrace        = 2 * time.Second
	QueenRespawnDelay = 5 * time.Second
	IdleResetPeriod   = 2 * time.Minute
)

// Broadcaster is the per-session send interface
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Game is the single authoritative copy of the shared state. Every mutation
// happens under mu and is followed by a broadcast before the lock is
// released, so no session ever observes a half-applied action.
type Game struct {
	mu      sync.RWMutex
	players map[string]*Player
	// clients maps player id -> live session. Kept separate from the
	// roster: it survives a state reset and is dropped per-entry when a
	// connection unbinds.
	clients map[string]Broadcaster

	status         GameStatus
	blueScore      int
	goldScore      int
	blueQueenAlive bool
	goldQueenAlive bool
	snailPosition  int
	blueBerries    int
	goldBerries    int
	startedAt      time.Time

	db        *DB
	analytics *Analytics

	stop     chan struct{}
	stopOnce sync.Once
}

// NewGame creates the game in its initial waiting state
func NewGame(db *DB, analytics *Analytics) *Game {
	g := &Game{
		clients:   make(map[string]Broadcaster),
		db:        db,
		analytics: analytics,
		stop:      make(chan struct{}),
	}
	g.resetLocked()
	return g
}

// resetLocked replaces the game state with a fresh initial value. Bound
// sessions keep their transport; stale player ids simply no-op until the
// client rejoins or reconnects.
func (g *Game) resetLocked() {
	g.players = make(map[string]*Player)
	g.status = StatusWaiting
	g.blueScore, g.goldScore = 0, 0
	g.blueQueenAlive, g.goldQueenAlive = true, true
	g.snailPosition = SnailStart
	g.blueBerries, g.goldBerries = 0, 0
	g.startedAt = time.Time{}
}

// Run drives the periodic idle-game reset sweep
func (g *Game) Run() {
	ticker := time.NewTicker(IdleResetPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.ResetIfEnded()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the reset sweep
func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// ResetIfEnded replaces an ended game with a fresh one and tells everyone
func (g *Game) ResetIfEnded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusEnded {
		return false
	}
	g.resetLocked()
	g.broadcastStateLocked()
	log.Info().Msg("ended game swept, state reset")
	return true
}

// Join allocates a fresh identity, assigns team and role from the roster,
// and registers the session for broadcasts. Returns nil when the game is
// full. Triggers waiting -> playing once enough players are present.
// authID links the player to an account; 0 for guests.
func (g *Game) Join(sess Broadcaster, authID int64) *Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.players) >= maxPlayers {
		return nil
	}

	team, role := AssignTeamRole(g.players)
	p := NewPlayer(GenerateUUID(), team, role)
	p.AuthPlayerID = authID
	g.players[p.ID] = p
	if sess != nil {
		g.clients[p.ID] = sess
	}

	if g.status == StatusWaiting && len(g.players) >= MinPlayersToStart {
		g.status = StatusPlaying
		g.startedAt = time.Now()
		g.track(EvtGameStart, 0, "")
		log.Info().Int("players", len(g.players)).Msg("game started")
	}

	g.broadcastStateLocked()
	log.Info().Str("player", p.ID).Str("team", string(team)).Str("role", string(role)).Msg("player joined")
	return p
}

// Reconnect rebinds a session to an existing identity. Returns (player,
// true) on resume; (nil, false) when the id is unknown or expired, in which
// case the caller falls back to Join. A resumed session privately receives a
// full snapshot before the broadcast goes out.
func (g *Game) Reconnect(playerID string, sess Broadcaster) (*Player, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok {
		return nil, false
	}

	p.Active = true
	if sess != nil {
		g.clients[playerID] = sess
		if data, err := msgpack.Marshal(g.snapshotLocked()); err == nil {
			sess.SendBinary(data)
		}
	}
	g.broadcastStateLocked()
	log.Info().Str("player", playerID).Msg("player reconnected")
	return p, true
}

// Disconnect marks the player inactive and schedules a delayed removal. The
// record is kept so the same identity can reconnect; the sweep re-checks
// Active at fire time, so a reconnect needs no timer cancellation.
//
// sess is the departing session. When the id has already been rebound to a
// newer session (reconnect raced the old transport's teardown), the departing
// one no longer owns the binding and must not touch it. A nil sess forces the
// teardown.
func (g *Game) Disconnect(playerID string, sess Broadcaster) {
	g.mu.Lock()
	if sess != nil {
		if cur, ok := g.clients[playerID]; ok && cur != sess {
			g.mu.Unlock()
			log.Debug().Str("player", playerID).Msg("stale disconnect ignored, id rebound")
			return
		}
	}
	// Always unbind: after a state reset the roster entry may be gone while
	// the session binding lingers.
	delete(g.clients, playerID)
	p, ok := g.players[playerID]
	if !ok {
		g.mu.Unlock()
		return
	}
	p.Active = false
	g.broadcastStateLocked()
	g.mu.Unlock()

	log.Info().Str("player", playerID).Dur("grace", DisconnectGrace).Msg("player disconnected")
	time.AfterFunc(DisconnectGrace, func() { g.reapDisconnected(playerID) })
}

func (g *Game) reapDisconnected(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok || p.Active {
		return
	}
	delete(g.players, playerID)
	g.broadcastStateLocked()
	log.Info().Str("player", playerID).Msg("disconnected player removed")
}

// Leave is the voluntary exit path: inactive immediately, record deleted
// after a short grace so in-flight broadcasts settle before the seat opens.
func (g *Game) Leave(playerID string) {
	g.mu.Lock()
	p, ok := g.players[playerID]
	if !ok {
		g.mu.Unlock()
		return
	}
	p.Active = false
	delete(g.clients, playerID)
	g.broadcastStateLocked()
	g.mu.Unlock()

	log.Info().Str("player", playerID).Msg("player left")
	time.AfterFunc(LeaveGrace, func() { g.reapLeft(playerID) })
}

func (g *Game) reapLeft(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.players[playerID]; !ok {
		return
	}
	delete(g.players, playerID)
	g.broadcastStateLocked()
}

// ApplyMovement overwrites a player's pose and fans the delta out to every
// other session. Movement never touches win conditions, so the cheap delta
// replaces the full snapshot here.
func (g *Game) ApplyMovement(playerID string, pos, rot Vec3) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok || !p.Active {
		return false
	}
	p.Position = pos.Rounded()
	p.Rotation = rot.Rounded()

	env := Envelope{T: MsgPositionUpdate, Data: PositionUpdateMsg{
		ID:       p.ID,
		Position: p.Position,
		Rotation: p.Rotation,
	}}
	for id, sess := range g.clients {
		if id == playerID {
			continue
		}
		sess.SendJSON(env)
	}
	return true
}

// CollectBerry credits one berry to a worker's team. Twelve berries end the
// game with an economic win. After the game has ended the counter still
// moves, but no further outcome is emitted.
func (g *Game) CollectBerry(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok || p.Role != RoleWorker {
		return false
	}

	var count int
	if p.Team == TeamBlue {
		g.blueBerries++
		count = g.blueBerries
	} else {
		g.goldBerries++
		count = g.goldBerries
	}
	p.Berries++
	g.track(EvtBerryCollect, p.AuthPlayerID, p.ID)

	if g.status != StatusEnded && count >= BerryWinCount {
		g.endGameLocked(p.Team, ReasonEconomic)
	}
	g.broadcastStateLocked()
	return true
}

// MoveSnail shifts the tug-of-war marker one step toward the worker's goal.
// Reaching either end wins for that side.
func (g *Game) MoveSnail(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok || p.Role != RoleWorker {
		return false
	}

	delta := 1
	if p.Team == TeamGold {
		delta = -1
	}
	g.snailPosition = clampInt(g.snailPosition+delta, SnailGoalGold, SnailGoalBlue)
	p.SnailMoves++

	if g.status != StatusEnded {
		switch g.snailPosition {
		case SnailGoalBlue:
			g.track(EvtSnailGoal, p.AuthPlayerID, p.ID)
			g.endGameLocked(TeamBlue, ReasonSnail)
		case SnailGoalGold:
			g.track(EvtSnailGoal, p.AuthPlayerID, p.ID)
			g.endGameLocked(TeamGold, ReasonSnail)
		}
	}
	g.broadcastStateLocked()
	return true
}

// AttackQueen kills the opposing queen and scores for the attacker's team.
// No proximity or cooldown validation happens here: the action is trusted as
// already validated by the caller. Three kills win militarily. The victim
// queen respawns after a fixed delay regardless of intervening events.
func (g *Game) AttackQueen(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok || p.Role != RoleSoldier {
		return false
	}

	victim := p.Team.Opponent()
	var score int
	if victim == TeamGold {
		g.goldQueenAlive = false
		g.blueScore++
		score = g.blueScore
	} else {
		g.blueQueenAlive = false
		g.goldScore++
		score = g.goldScore
	}
	p.QueenKills++
	g.track(EvtQueenKill, p.AuthPlayerID, p.ID)
	log.Debug().Str("player", playerID).Str("victim", string(victim)).Int("score", score).Msg("queen killed")

	if g.status != StatusEnded && score >= MilitaryWinScore {
		g.endGameLocked(p.Team, ReasonMilitary)
	}
	g.broadcastStateLocked()

	time.AfterFunc(QueenRespawnDelay, func() { g.respawnQueen(victim) })
	return true
}

// respawnQueen flips the alive flag back on. If the game ended in between
// the broadcast is harmless.
func (g *Game) respawnQueen(team Team) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if team == TeamGold {
		g.goldQueenAlive = true
	} else {
		g.blueQueenAlive = true
	}
	g.broadcastStateLocked()
}

// endGameLocked flips status to ended exactly once per game and announces
// the outcome. Aggregate persistence happens off the lock.
func (g *Game) endGameLocked(winner Team, reason string) {
	g.status = StatusEnded
	g.broadcastMsgLocked(Envelope{T: MsgGameOver, Data: GameOverMsg{Winner: winner, Reason: reason}})
	g.track(EvtGameOver, 0, "")
	log.Info().Str("winner", string(winner)).Str("reason", reason).Msg("game over")

	duration := 0.0
	if !g.startedAt.IsZero() {
		duration = time.Since(g.startedAt).Seconds()
	}

	results := make([]matchPlayer, 0, len(g.players))
	for _, p := range g.players {
		results = append(results, matchPlayer{
			authID:  p.AuthPlayerID,
			team:    p.Team,
			role:    p.Role,
			berries: p.Berries,
			snail:   p.SnailMoves,
			kills:   p.QueenKills,
			won:     p.Team == winner,
			sess:    g.clients[p.ID],
		})
	}
	go g.persistMatch(winner, reason, duration, results)
}

type matchPlayer struct {
	authID  int64
	team    Team
	role    Role
	berries int
	snail   int
	kills   int
	won     bool
	sess    Broadcaster
}

// persistMatch records the match and flushes per-player aggregates for
// authenticated players, then checks achievements.
func (g *Game) persistMatch(winner Team, reason string, duration float64, results []matchPlayer) {
	if g.db == nil {
		return
	}
	matchID, err := g.db.RecordMatch(string(winner), reason, duration)
	if err != nil {
		log.Error().Err(err).Msg("record match")
		return
	}
	for _, r := range results {
		if r.authID == 0 {
			continue
		}
		if err := g.db.RecordMatchPlayer(matchID, r.authID, string(r.team), string(r.role), r.berries, r.snail, r.kills); err != nil {
			log.Error().Err(err).Int64("pid", r.authID).Msg("record match player")
		}
		if err := g.db.UpdateStatsAfterMatch(r.authID, r.won, r.berries, r.snail, r.kills, duration); err != nil {
			log.Error().Err(err).Int64("pid", r.authID).Msg("update stats")
			continue
		}
		for _, def := range CheckAchievements(g.db, r.authID, r.berries, r.kills, r.won) {
			if r.sess != nil {
				r.sess.SendJSON(Envelope{T: MsgAchievement, Data: AchievementMsg{
					ID: def.ID, Name: def.Name, Desc: def.Description,
				}})
			}
		}
	}
}

// snapshotLocked builds the wire form of the current state
func (g *Game) snapshotLocked() GameSnapshot {
	players := make(map[string]PlayerState, len(g.players))
	for id, p := range g.players {
		players[id] = p.ToState()
	}
	return GameSnapshot{
		Status:         g.status,
		Players:        players,
		BlueScore:      g.blueScore,
		GoldScore:      g.goldScore,
		BlueQueenAlive: g.blueQueenAlive,
		GoldQueenAlive: g.goldQueenAlive,
		SnailPosition:  g.snailPosition,
		BlueBerries:    g.blueBerries,
		GoldBerries:    g.goldBerries,
	}
}

// broadcastStateLocked msgpack-encodes the full snapshot once and hands it
// to every bound session
func (g *Game) broadcastStateLocked() {
	data, err := msgpack.Marshal(g.snapshotLocked())
	if err != nil {
		log.Error().Err(err).Msg("marshal snapshot")
		return
	}
	for _, sess := range g.clients {
		sess.SendBinary(data)
	}
}

// broadcastMsgLocked sends a JSON envelope to every bound session
func (g *Game) broadcastMsgLocked(env Envelope) {
	for _, sess := range g.clients {
		sess.SendJSON(env)
	}
}

func (g *Game) track(evtType string, authID int64, playerID string) {
	if g.analytics != nil {
		g.analytics.Track(evtType, authID, playerID, "")
	}
}

// Snapshot returns a copy of the current state
func (g *Game) Snapshot() GameSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

// HasPlayer reports whether an id is present in the roster
func (g *Game) HasPlayer(playerID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.players[playerID]
	return ok
}

// PlayerCount returns the roster size, active or not
func (g *Game) PlayerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.players)
}

// Status returns the current game status
func (g *Game) Status() GameStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}
