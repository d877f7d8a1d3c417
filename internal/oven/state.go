package oven

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ChangeSet describes one applied state update: which fields changed and
// the full snapshot after the merge. Changed field names match the
// Snapshot JSON tags.
type ChangeSet struct {
	DeviceID string   `json:"device_id"`
	Changed  []string `json:"changed"`
	Snapshot Snapshot `json:"snapshot"`
}

// StateCache holds the canonical merged state of a single oven.
//
// The vendor cloud pushes partial frames: any subsystem absent from a
// frame is unchanged. ApplyUpdate merges a frame field by field
// (last write wins) and reports exactly what changed.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type StateCache struct {
	mu   sync.RWMutex
	snap Snapshot

	// now is injectable for tests.
	now func() time.Time
}

// NewStateCache creates a cache for one device. The version gates
// temperature range validation for commands targeting this device.
func NewStateCache(deviceID string, version Version) *StateCache {
	return &StateCache{
		snap: Snapshot{
			DeviceID: deviceID,
			Version:  version,
			Unit:     UnitCelsius,
		},
		now: time.Now,
	}
}

// Current returns a copy of the merged snapshot. The copy is safe to
// retain; it never aliases cache internals.
func (c *StateCache) Current() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// ApplyUpdate merges a raw state frame into the cached snapshot.
//
// Returns:
//   - *ChangeSet: the fields that changed and the post-merge snapshot,
//     or nil when the frame carried no new information
//   - error: ErrMalformedFrame when the payload cannot be decoded; the
//     cached state is untouched in that case
func (c *StateCache) ApplyUpdate(raw []byte) (*ChangeSet, error) {
	var frame stateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if frame.State == nil {
		return nil, fmt.Errorf("%w: missing state object", ErrMalformedFrame)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap
	frame.apply(&next)

	changed := diffSnapshots(c.snap, next)
	if len(changed) == 0 {
		return nil, nil
	}

	next.UpdatedAt = c.now()
	c.snap = next

	return &ChangeSet{
		DeviceID: c.snap.DeviceID,
		Changed:  changed,
		Snapshot: c.snap,
	}, nil
}

// stateFrame mirrors the cloud's push payload. Every field is a pointer:
// nil means "not present in this frame, leave the cached value alone".
type stateFrame struct {
	CookerID string     `json:"cookerId"`
	Type     string     `json:"type"`
	State    *stateBody `json:"state"`
}

type stateBody struct {
	State *modeSection  `json:"state"`
	Nodes *nodesSection `json:"nodes"`
	Cook  *cookSection  `json:"cook"`
}

type modeSection struct {
	Mode            *string `json:"mode"`
	TemperatureUnit *string `json:"temperatureUnit"`
}

type nodesSection struct {
	TemperatureBulbs *bulbsNode    `json:"temperatureBulbs"`
	Probe            *probeNode    `json:"probe"`
	SteamGenerators  *steamNode    `json:"steamGenerators"`
	Timer            *timerNode    `json:"timer"`
	Fan              *fanNode      `json:"fan"`
	Vent             *ventNode     `json:"vent"`
	Door             *doorNode     `json:"door"`
	Lamp             *lampNode     `json:"lamp"`
	WaterTank        *waterNode    `json:"waterTank"`
	HeatingElements  *elementsNode `json:"heatingElements"`
}

type bulbsNode struct {
	Mode      *string      `json:"mode"`
	Dry       *bulbReading `json:"dry"`
	Wet       *bulbReading `json:"wet"`
	DryBottom *bulbReading `json:"dryBottom"`
}

type bulbReading struct {
	Current  *temperature `json:"current"`
	Setpoint *temperature `json:"setpoint"`
}

type temperature struct {
	Celsius *float64 `json:"celsius"`
}

type probeNode struct {
	Connected *bool        `json:"connected"`
	Current   *temperature `json:"current"`
	Setpoint  *temperature `json:"setpoint"`
}

type steamNode struct {
	RelativeHumidity *struct {
		Current *int `json:"current"`
	} `json:"relativeHumidity"`
	SteamPercentage *struct {
		Setpoint *int `json:"setpoint"`
	} `json:"steamPercentage"`
}

type timerNode struct {
	Mode    *string `json:"mode"`
	Initial *int    `json:"initial"`
	Current *int    `json:"current"`
}

type fanNode struct {
	Speed *int `json:"speed"`
}

type ventNode struct {
	Open *bool `json:"open"`
}

type doorNode struct {
	Closed *bool `json:"closed"`
}

type lampNode struct {
	On *bool `json:"on"`
}

type waterNode struct {
	Empty *bool `json:"empty"`
}

type elementsNode struct {
	Top    *elementState `json:"top"`
	Bottom *elementState `json:"bottom"`
	Rear   *elementState `json:"rear"`
}

type elementState struct {
	On *bool `json:"on"`
}

type cookSection struct {
	ActiveStageIndex *int              `json:"activeStageIndex"`
	Stages           []json.RawMessage `json:"stages"`
}

// apply merges the frame into the snapshot, field by field.
func (f *stateFrame) apply(s *Snapshot) {
	body := f.State

	if body.State != nil {
		if body.State.Mode != nil {
			s.Mode = *body.State.Mode
		}
		if body.State.TemperatureUnit != nil {
			s.Unit = TemperatureUnit(*body.State.TemperatureUnit)
		}
	}

	if body.Nodes != nil {
		applyNodes(body.Nodes, s)
	}

	if body.Cook != nil {
		if body.Cook.ActiveStageIndex != nil {
			s.StageIndex = *body.Cook.ActiveStageIndex
		}
		if body.Cook.Stages != nil {
			s.StageCount = len(body.Cook.Stages)
		}
	}
}

func applyNodes(n *nodesSection, s *Snapshot) {
	if b := n.TemperatureBulbs; b != nil {
		if b.Mode != nil {
			s.TemperatureMode = TemperatureMode(*b.Mode)
		}
		if b.Dry != nil {
			if b.Dry.Current != nil && b.Dry.Current.Celsius != nil {
				s.CurrentCelsius = *b.Dry.Current.Celsius
			}
			if b.Dry.Setpoint != nil && b.Dry.Setpoint.Celsius != nil {
				s.TargetCelsius = *b.Dry.Setpoint.Celsius
			}
		}
		if b.Wet != nil {
			if b.Wet.Current != nil && b.Wet.Current.Celsius != nil {
				s.WetCurrentCelsius = *b.Wet.Current.Celsius
			}
			// Wet mode regulates on the wet bulb setpoint.
			if s.TemperatureMode == ModeWet && b.Wet.Setpoint != nil && b.Wet.Setpoint.Celsius != nil {
				s.TargetCelsius = *b.Wet.Setpoint.Celsius
			}
		}
		if b.DryBottom != nil && b.DryBottom.Current != nil && b.DryBottom.Current.Celsius != nil {
			s.BottomHeatCelsius = *b.DryBottom.Current.Celsius
		}
	}

	if p := n.Probe; p != nil {
		if p.Connected != nil {
			s.ProbeConnected = *p.Connected
		}
		if p.Current != nil && p.Current.Celsius != nil {
			s.ProbeCelsius = *p.Current.Celsius
		}
		if p.Setpoint != nil && p.Setpoint.Celsius != nil {
			target := *p.Setpoint.Celsius
			s.ProbeTargetCelsius = &target
		}
	}

	if g := n.SteamGenerators; g != nil {
		if g.RelativeHumidity != nil && g.RelativeHumidity.Current != nil {
			s.RelativeHumidity = *g.RelativeHumidity.Current
		}
		if g.SteamPercentage != nil && g.SteamPercentage.Setpoint != nil {
			s.SteamPercent = *g.SteamPercentage.Setpoint
		}
	}

	if t := n.Timer; t != nil {
		if t.Mode != nil {
			s.TimerMode = TimerMode(*t.Mode)
		}
		if t.Initial != nil {
			s.TimerInitial = *t.Initial
		}
		if t.Current != nil {
			s.TimerRemaining = *t.Current
		}
	}

	if n.Fan != nil && n.Fan.Speed != nil {
		s.FanSpeed = *n.Fan.Speed
	}
	if n.Vent != nil && n.Vent.Open != nil {
		s.VentOpen = *n.Vent.Open
	}
	if n.Door != nil && n.Door.Closed != nil {
		s.DoorOpen = !*n.Door.Closed
	}
	if n.Lamp != nil && n.Lamp.On != nil {
		s.LampOn = *n.Lamp.On
	}
	if n.WaterTank != nil && n.WaterTank.Empty != nil {
		s.WaterLow = *n.WaterTank.Empty
	}

	if e := n.HeatingElements; e != nil {
		if e.Top != nil && e.Top.On != nil {
			s.HeatingElements.Top = *e.Top.On
		}
		if e.Bottom != nil && e.Bottom.On != nil {
			s.HeatingElements.Bottom = *e.Bottom.On
		}
		if e.Rear != nil && e.Rear.On != nil {
			s.HeatingElements.Rear = *e.Rear.On
		}
	}
}

// diffSnapshots returns the JSON field names that differ between two
// snapshots. UpdatedAt is excluded: it is bookkeeping, not state.
func diffSnapshots(old, next Snapshot) []string {
	var changed []string
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}

	add("mode", old.Mode != next.Mode)
	add("unit", old.Unit != next.Unit)
	add("temperature_mode", old.TemperatureMode != next.TemperatureMode)
	add("current_celsius", old.CurrentCelsius != next.CurrentCelsius)
	add("target_celsius", old.TargetCelsius != next.TargetCelsius)
	add("wet_current_celsius", old.WetCurrentCelsius != next.WetCurrentCelsius)
	add("bottom_heat_celsius", old.BottomHeatCelsius != next.BottomHeatCelsius)
	add("probe_connected", old.ProbeConnected != next.ProbeConnected)
	add("probe_celsius", old.ProbeCelsius != next.ProbeCelsius)
	add("probe_target_celsius", !equalFloatPtr(old.ProbeTargetCelsius, next.ProbeTargetCelsius))
	add("timer_mode", old.TimerMode != next.TimerMode)
	add("timer_initial", old.TimerInitial != next.TimerInitial)
	add("timer_remaining", old.TimerRemaining != next.TimerRemaining)
	add("steam_percent", old.SteamPercent != next.SteamPercent)
	add("relative_humidity", old.RelativeHumidity != next.RelativeHumidity)
	add("fan_speed", old.FanSpeed != next.FanSpeed)
	add("door_open", old.DoorOpen != next.DoorOpen)
	add("water_low", old.WaterLow != next.WaterLow)
	add("vent_open", old.VentOpen != next.VentOpen)
	add("lamp_on", old.LampOn != next.LampOn)
	add("heating_elements", old.HeatingElements != next.HeatingElements)
	add("stage_index", old.StageIndex != next.StageIndex)
	add("stage_count", old.StageCount != next.StageCount)

	return changed
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
