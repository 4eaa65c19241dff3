package session

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mutableProvider lets a test change the configuration between ticks.
type mutableProvider struct {
	cfg Config
}

func (p *mutableProvider) SessionConfig() Config {
	return p.cfg
}

func shortConfig(cycles int) Config {
	return Config{
		WorkMinutes:           1,
		ShortBreakMinutes:     1,
		LongBreakMinutes:      2,
		CyclesBeforeLongBreak: cycles,
	}
}

func tickN(m *Machine, n int) []Tick {
	ticks := make([]Tick, 0, n)
	for i := 0; i < n; i++ {
		ticks = append(ticks, m.OnTick())
	}
	return ticks
}

func TestNewMachine_InitialState(t *testing.T) {
	m := NewMachine(StaticProvider(DefaultConfig()))

	s := m.State()
	assert.Equal(t, PhaseWork, s.Phase)
	assert.Equal(t, StatusStopped, s.Status)
	assert.Equal(t, 25*60, s.RemainingSeconds)
	assert.Equal(t, 0, s.CycleIndex)
}

func TestMachine_TicksStrictlyDecreaseUntilTransition(t *testing.T) {
	m := NewMachine(StaticProvider(shortConfig(4)))
	require.NoError(t, m.Start())

	prev := m.State().RemainingSeconds
	for i := 0; i < 59; i++ {
		tick := m.OnTick()
		assert.Equal(t, TickElapsed, tick.Kind)
		cur := m.State().RemainingSeconds
		assert.Less(t, cur, prev)
		assert.Greater(t, cur, 0)
		prev = cur
	}

	tick := m.OnTick()
	assert.Equal(t, TickTransition, tick.Kind)
	assert.Equal(t, PhaseWork, tick.Ended)
	assert.Equal(t, PhaseShortBreak, tick.Started)
	assert.Equal(t, 60, m.State().RemainingSeconds)
}

func TestMachine_TickIgnoredWhenNotRunning(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Machine)
	}{
		{
			name:  "stopped",
			setup: func(m *Machine) {},
		},
		{
			name: "paused",
			setup: func(m *Machine) {
				require.NoError(t, m.Start())
				tickN(m, 10)
				require.NoError(t, m.Pause())
			},
		},
		{
			name: "stopped mid-phase",
			setup: func(m *Machine) {
				require.NoError(t, m.Start())
				tickN(m, 70)
				m.Stop()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(StaticProvider(shortConfig(4)))
			tt.setup(m)
			before := m.State()

			for _, tick := range tickN(m, 120) {
				assert.Equal(t, TickIgnored, tick.Kind)
			}
			assert.Equal(t, before, m.State())
		})
	}
}

func TestMachine_ResetIsIdempotent(t *testing.T) {
	m := NewMachine(StaticProvider(shortConfig(2)))
	require.NoError(t, m.Start())
	tickN(m, 130)

	m.Reset()
	once := m.State()
	m.Reset()
	twice := m.State()

	assert.Equal(t, once, twice)
	assert.Equal(t, PhaseWork, twice.Phase)
	assert.Equal(t, 0, twice.CycleIndex)
	assert.Equal(t, 60, twice.RemainingSeconds)
	assert.Equal(t, StatusStopped, twice.Status)
}

func TestMachine_WorkShortBreakScenario(t *testing.T) {
	m := NewMachine(StaticProvider(Config{
		WorkMinutes:           1,
		ShortBreakMinutes:     1,
		LongBreakMinutes:      1,
		CyclesBeforeLongBreak: 2,
	}))
	require.NoError(t, m.Start())
	assert.Equal(t, PhaseWork, m.State().Phase)
	assert.Equal(t, 60, m.State().RemainingSeconds)

	tickN(m, 60)
	assert.Equal(t, PhaseShortBreak, m.State().Phase)
	assert.Equal(t, 60, m.State().RemainingSeconds)

	tickN(m, 60)
	assert.Equal(t, PhaseWork, m.State().Phase)
	assert.Equal(t, 60, m.State().RemainingSeconds)
	assert.Equal(t, 1, m.State().CycleIndex)
}

func TestMachine_LongBreakAfterConfiguredCycles(t *testing.T) {
	m := NewMachine(StaticProvider(shortConfig(4)))
	require.NoError(t, m.Start())

	var breaks []Phase
	for i := 0; i < 4; i++ {
		assert.Equal(t, PhaseWork, m.State().Phase)
		tickN(m, 60)
		breaks = append(breaks, m.State().Phase)
		tickN(m, m.State().RemainingSeconds)
	}

	assert.Equal(t, []Phase{PhaseShortBreak, PhaseShortBreak, PhaseShortBreak, PhaseLongBreak}, breaks)
	assert.Equal(t, PhaseWork, m.State().Phase)
	assert.Equal(t, 0, m.State().CycleIndex)
	assert.Equal(t, 60, m.State().RemainingSeconds)
}

func TestMachine_ConfigChangeAppliesAtNextPhase(t *testing.T) {
	provider := &mutableProvider{cfg: shortConfig(4)}
	m := NewMachine(provider)
	require.NoError(t, m.Start())
	tickN(m, 20)

	provider.cfg.WorkMinutes = 10
	provider.cfg.ShortBreakMinutes = 3

	assert.Equal(t, 40, m.State().RemainingSeconds, "running phase keeps its length")

	tickN(m, 40)
	assert.Equal(t, PhaseShortBreak, m.State().Phase)
	assert.Equal(t, 3*60, m.State().RemainingSeconds)

	tickN(m, 3*60)
	assert.Equal(t, PhaseWork, m.State().Phase)
	assert.Equal(t, 10*60, m.State().RemainingSeconds)
}

func TestMachine_Commands(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(m *Machine)
		command    func(m *Machine) error
		wantErr    error
		wantStatus Status
	}{
		{
			name:       "start from stopped",
			setup:      func(m *Machine) {},
			command:    (*Machine).Start,
			wantStatus: StatusRunning,
		},
		{
			name:       "start while running",
			setup:      func(m *Machine) { _ = m.Start() },
			command:    (*Machine).Start,
			wantErr:    ErrAlreadyRunning,
			wantStatus: StatusRunning,
		},
		{
			name:       "pause while stopped",
			setup:      func(m *Machine) {},
			command:    (*Machine).Pause,
			wantErr:    ErrNotRunning,
			wantStatus: StatusStopped,
		},
		{
			name:       "pause while running",
			setup:      func(m *Machine) { _ = m.Start() },
			command:    (*Machine).Pause,
			wantStatus: StatusPaused,
		},
		{
			name:       "resume while stopped",
			setup:      func(m *Machine) {},
			command:    (*Machine).Resume,
			wantErr:    ErrNotPaused,
			wantStatus: StatusStopped,
		},
		{
			name:       "resume while paused",
			setup:      func(m *Machine) { _ = m.Start(); _ = m.Pause() },
			command:    (*Machine).Resume,
			wantStatus: StatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(StaticProvider(shortConfig(4)))
			tt.setup(m)
			before := m.State()

			err := tt.command(m)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.True(t, errors.Is(err, ErrInvalidCommand))
				assert.Equal(t, before, m.State(), "invalid command must not change state")
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, m.State().Status)
		})
	}
}

func TestMachine_StartFromPausedKeepsRemaining(t *testing.T) {
	m := NewMachine(StaticProvider(shortConfig(4)))
	require.NoError(t, m.Start())
	tickN(m, 15)
	require.NoError(t, m.Pause())

	require.NoError(t, m.Start())
	assert.Equal(t, StatusRunning, m.State().Status)
	assert.Equal(t, 45, m.State().RemainingSeconds)
}

func TestMachine_StopKeepsPhaseResetDoesNot(t *testing.T) {
	m := NewMachine(StaticProvider(shortConfig(4)))
	require.NoError(t, m.Start())
	tickN(m, 75)

	m.Stop()
	s := m.State()
	assert.Equal(t, StatusStopped, s.Status)
	assert.Equal(t, PhaseShortBreak, s.Phase)
	assert.Equal(t, 45, s.RemainingSeconds)
	assert.Equal(t, 1, s.CycleIndex)

	require.NoError(t, m.Start())
	assert.Equal(t, PhaseWork, m.State().Phase, "start from stopped begins a work phase")
	assert.Equal(t, 60, m.State().RemainingSeconds)
}

func TestMachine_WaitForInput(t *testing.T) {
	cfg := shortConfig(4)
	cfg.WaitForInput = true
	m := NewMachine(StaticProvider(cfg))
	require.NoError(t, m.Start())

	ticks := tickN(m, 60)
	last := ticks[len(ticks)-1]
	assert.Equal(t, TickTransition, last.Kind)
	assert.Equal(t, PhaseWork, last.Ended)
	assert.Equal(t, PhaseAwaitingInput, last.Started)

	s := m.State()
	assert.Equal(t, PhaseAwaitingInput, s.Phase)
	assert.Equal(t, StatusPaused, s.Status)
	assert.Equal(t, PhaseShortBreak, s.Next)
	assert.Equal(t, 60, s.RemainingSeconds)

	for _, tick := range tickN(m, 5) {
		assert.Equal(t, TickIgnored, tick.Kind)
	}

	require.NoError(t, m.Resume())
	assert.Equal(t, PhaseShortBreak, m.State().Phase)
	assert.Equal(t, StatusRunning, m.State().Status)
	assert.Equal(t, 60, m.State().RemainingSeconds)
}

func TestMachine_StopWhileAwaitingInputThenStart(t *testing.T) {
	cfg := shortConfig(4)
	cfg.WaitForInput = true
	m := NewMachine(StaticProvider(cfg))
	require.NoError(t, m.Start())
	tickN(m, 60)
	require.Equal(t, PhaseAwaitingInput, m.State().Phase)

	m.Stop()
	stopped := m.State()
	assert.Equal(t, PhaseAwaitingInput, stopped.Phase)
	assert.Equal(t, PhaseShortBreak, stopped.Next, "next phase kept for recovery")

	// Start from STOPPED always begins a fresh work phase.
	require.NoError(t, m.Start())
	s := m.State()
	assert.Equal(t, PhaseWork, s.Phase)
	assert.Equal(t, PhaseWork, s.Next)
	assert.Equal(t, 60, s.RemainingSeconds)
	assert.Equal(t, 1, s.CycleIndex)

	// Restoring the stopped state resumes into the pending phase instead.
	restored := NewMachine(StaticProvider(cfg))
	stopped.Status = StatusPaused
	require.NoError(t, restored.Restore(stopped))
	require.NoError(t, restored.Start())
	assert.Equal(t, PhaseShortBreak, restored.State().Phase)
}

func TestMachine_Restore(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		wantErr bool
	}{
		{
			name:  "short break paused",
			state: State{Phase: PhaseShortBreak, RemainingSeconds: 120, CycleIndex: 1, Status: StatusPaused},
		},
		{
			name:  "awaiting input with pending work",
			state: State{Phase: PhaseAwaitingInput, RemainingSeconds: 60, Status: StatusPaused, Next: PhaseWork},
		},
		{
			name:    "zero remaining",
			state:   State{Phase: PhaseWork, RemainingSeconds: 0, Status: StatusPaused},
			wantErr: true,
		},
		{
			name:    "unknown phase",
			state:   State{Phase: Phase(7), RemainingSeconds: 10, Status: StatusPaused},
			wantErr: true,
		},
		{
			name:    "negative cycle",
			state:   State{Phase: PhaseWork, RemainingSeconds: 10, CycleIndex: -1, Status: StatusPaused},
			wantErr: true,
		},
		{
			name:    "awaiting input pending itself",
			state:   State{Phase: PhaseAwaitingInput, RemainingSeconds: 10, Status: StatusPaused, Next: PhaseAwaitingInput},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(StaticProvider(shortConfig(4)))
			before := m.State()

			err := m.Restore(tt.state)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidState))
				assert.Equal(t, before, m.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.state.Phase, m.State().Phase)
			assert.Equal(t, tt.state.RemainingSeconds, m.State().RemainingSeconds)
		})
	}
}

func TestMachine_SnapshotIsACopy(t *testing.T) {
	m := NewMachine(StaticProvider(shortConfig(4)))
	require.NoError(t, m.Start())

	snap := m.Snapshot()
	tickN(m, 5)

	assert.Equal(t, 60, snap.RemainingSeconds)
	assert.True(t, snap.Running)
	assert.Equal(t, 55, m.Snapshot().RemainingSeconds)
}
