package hardware

// Fake collaborators for tests. Not safe for concurrent use.

// FakeDistanceSensor replays a scripted sequence of samples.
type FakeDistanceSensor struct {
	Samples []float64
	Errs    []error
	idx     int
	Closed  bool
}

func (f *FakeDistanceSensor) Sample() (float64, error) {
	if f.idx < len(f.Errs) && f.Errs[f.idx] != nil {
		err := f.Errs[f.idx]
		f.idx++
		return 0, err
	}
	if f.idx >= len(f.Samples) {
		if len(f.Samples) == 0 {
			return 0, ErrNoReading
		}
		return f.Samples[len(f.Samples)-1], nil
	}
	v := f.Samples[f.idx]
	f.idx++
	return v, nil
}

func (f *FakeDistanceSensor) Close() error {
	f.Closed = true
	return nil
}

// FakeSwitch reports a settable wet state.
type FakeSwitch struct {
	Wet    bool
	Err    error
	Closed bool
}

func (f *FakeSwitch) Read() (bool, error) { return f.Wet, f.Err }
func (f *FakeSwitch) Close() error {
	f.Closed = true
	return nil
}

// FakeInput reports a settable pressed/held state.
type FakeInput struct {
	High   bool
	Err    error
	Closed bool
}

func (f *FakeInput) Read() (bool, error) { return f.High, f.Err }
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// FakeActuator records relay transitions.
type FakeActuator struct {
	On          bool
	Transitions []bool
	SetErr      error
	Closed      bool
}

func (f *FakeActuator) SetRunning(on bool) error {
	if f.SetErr != nil {
		return f.SetErr
	}
	f.On = on
	f.Transitions = append(f.Transitions, on)
	return nil
}

func (f *FakeActuator) Running() bool { return f.On }
func (f *FakeActuator) Close() error {
	f.Closed = true
	return nil
}
