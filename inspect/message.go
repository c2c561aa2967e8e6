package inspect

import (
	"fmt"
	"time"

	"github.com/milk9111/ravar/phase"
	"github.com/milk9111/ravar/scene"
)

const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
)

// Message is one JSON frame sent to inspector clients.
type Message struct {
	Type     string    `json:"type"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Event    *Event    `json:"event,omitempty"`
}

type Chain struct {
	Key    string `json:"key"`
	State  string `json:"state"`
	Step   int    `json:"step"`
	Steps  int    `json:"steps"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Waited int    `json:"waited"`
}

type Scene struct {
	Name  string `json:"name"`
	Scope string `json:"scope"`
	State string `json:"state"`
}

type Player struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Snapshot is the published state of one frame.
type Snapshot struct {
	Frame     uint64   `json:"frame"`
	Phase     string   `json:"phase"`
	Previous  string   `json:"previous"`
	Stack     []string `json:"stack"`
	Cutscene  string   `json:"cutscene"`
	Encounter string   `json:"encounter,omitempty"`
	Frozen    bool     `json:"frozen"`
	Changes   uint64   `json:"changes"`
	Chains    []Chain  `json:"chains"`
	Scenes    []Scene  `json:"scenes"`
	Player    Player   `json:"player"`

	Subscribers map[string]int `json:"subscribers,omitempty"`
}

// Event is a problem reported by the orchestrator.
type Event struct {
	Time   time.Time      `json:"time"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewSnapshot flattens orchestrator and streamer state into JSON friendly
// values.
func NewSnapshot(frame uint64, ps phase.Snapshot, scenes []scene.Status, player Player) Snapshot {
	s := Snapshot{
		Frame:     frame,
		Phase:     ps.Current.String(),
		Previous:  ps.Previous.String(),
		Stack:     make([]string, 0, len(ps.Stack)),
		Cutscene:  ps.Cutscene,
		Encounter: ps.Encounter,
		Frozen:    ps.Frozen,
		Changes:   ps.Changes,
		Chains:    make([]Chain, 0, len(ps.Chains)),
		Scenes:    make([]Scene, 0, len(scenes)),
		Player:    player,
	}
	for _, p := range ps.Stack {
		s.Stack = append(s.Stack, p.String())
	}
	for _, c := range ps.Chains {
		s.Chains = append(s.Chains, Chain{
			Key:    c.Key,
			State:  c.State.String(),
			Step:   c.Step,
			Steps:  c.Steps,
			Name:   c.Name,
			Kind:   c.Kind.String(),
			Waited: c.Waited,
		})
	}
	for _, sc := range scenes {
		s.Scenes = append(s.Scenes, Scene{Name: sc.Name, Scope: sc.Scope.String(), State: sc.State.String()})
	}
	return s
}

func (s Snapshot) String() string {
	return fmt.Sprintf("frame=%d phase=%s previous=%s chains=%d", s.Frame, s.Phase, s.Previous, len(s.Chains))
}
