package session

// State only moves forward: Idle, Recording, Stopping, Stopped.
type State int32

const (
	Idle State = iota
	Recording
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

type StopReason string

const (
	ReasonNone       StopReason = ""
	ReasonTimeLimit  StopReason = "time_limit"
	ReasonSilence    StopReason = "silence"
	ReasonStopPhrase StopReason = "stop_phrase"
	ReasonSignal     StopReason = "signal"
	ReasonCanceled   StopReason = "canceled"
	ReasonError      StopReason = "error"
)
