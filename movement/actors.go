package movement

import "github.com/milk9111/ravar/scene"

// NPC is a non-battling character with something to say.
type NPC struct {
	def  scene.NPC
	x, y int
}

func (n *NPC) ActorID() string          { return n.def.ID }
func (n *NPC) Position() (x, y int)     { return n.x, n.y }
func (n *NPC) Lines() []string          { return n.def.Lines }
func (n *NPC) place(origin scene.Point) { n.x, n.y = origin.X+n.def.X, origin.Y+n.def.Y }

// Battler is a scripted opponent. It keeps its defeated state for the whole
// session, across scene reloads.
type Battler struct {
	def      scene.Battler
	area     string
	x, y     int
	defeated bool
}

func (b *Battler) ActorID() string      { return b.def.ID }
func (b *Battler) Position() (x, y int) { return b.x, b.y }

// ID, Alive and MarkDefeated make a Battler a signal.Opponent.
func (b *Battler) ID() string    { return b.def.ID }
func (b *Battler) Alive() bool   { return !b.defeated }
func (b *Battler) MarkDefeated() { b.defeated = true }

func (b *Battler) place(origin scene.Point) {
	b.x, b.y = origin.X+b.def.X, origin.Y+b.def.Y
}

// Sees reports whether the tile px,py is inside the battler's sight line.
// Walls are checked separately.
func (b *Battler) Sees(px, py int) bool {
	dx, dy, ok := scene.Direction(b.def.Facing)
	if !ok || b.defeated {
		return false
	}
	for k := 1; k <= b.def.Sight; k++ {
		if b.x+dx*k == px && b.y+dy*k == py {
			return true
		}
	}
	return false
}
