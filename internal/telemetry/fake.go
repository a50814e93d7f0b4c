package telemetry

// FakeLink records sent events and scripts connect outcomes for tests.
type FakeLink struct {
	handlers Handlers

	Events      []Event
	ConnectErrs []error
	connectIdx  int
	Connects    int
	SendErr     error
	Closed      bool
}

func NewFakeLink() *FakeLink { return &FakeLink{} }

func (f *FakeLink) SetHandlers(h Handlers) { f.handlers = h }

func (f *FakeLink) Connect() error {
	f.Connects++
	if f.connectIdx < len(f.ConnectErrs) {
		err := f.ConnectErrs[f.connectIdx]
		f.connectIdx++
		if err != nil {
			return err
		}
	}
	if f.handlers.OnConnect != nil {
		f.handlers.OnConnect()
	}
	return nil
}

func (f *FakeLink) Send(e Event) error {
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Events = append(f.Events, e)
	return nil
}

func (f *FakeLink) Close() error {
	f.Closed = true
	return nil
}

// InjectMessage delivers an inbound payload as if it arrived from the
// broker.
func (f *FakeLink) InjectMessage(payload []byte) {
	if f.handlers.OnMessage != nil {
		f.handlers.OnMessage(payload)
	}
}

// InjectDisconnect simulates a link loss.
func (f *FakeLink) InjectDisconnect(err error) {
	if f.handlers.OnDisconnect != nil {
		f.handlers.OnDisconnect(err)
	}
}

// InjectError simulates a link-level error.
func (f *FakeLink) InjectError(err error) {
	if f.handlers.OnError != nil {
		f.handlers.OnError(err)
	}
}

// TypesSent returns the event types sent in order.
func (f *FakeLink) TypesSent() []string {
	var out []string
	for _, e := range f.Events {
		out = append(out, e.Type)
	}
	return out
}
