package hoststack

// TransferStatus is the completion status recorded on a transfer by the
// host before its callback runs.
type TransferStatus int

const (
	TransferCompleted TransferStatus = iota
	TransferError
	TransferTimedOut
	TransferCancelled
	TransferStall
	TransferNoDevice
	TransferOverflow
)

var transferStatusNames = map[TransferStatus]string{
	TransferCompleted: "completed",
	TransferError:     "error",
	TransferTimedOut:  "timed out",
	TransferCancelled: "cancelled",
	TransferStall:     "endpoint stalled",
	TransferNoDevice:  "device disconnected",
	TransferOverflow:  "overflow",
}

func (ts TransferStatus) String() string {
	if name, found := transferStatusNames[ts]; found {
		return name
	}
	return "unknown"
}

// Transfer is a single asynchronous transfer. The caller fills in the
// target, payload and callback before submitting; the host fills in Status
// and ActualBytes before invoking the callback. The callback runs on a
// host-owned goroutine, concurrent with the submitter.
type Transfer struct {
	Device          DeviceHandle
	EndpointAddress EndpointAddress
	NumBytes        int
	Buffer          []byte
	Callback        func(*Transfer)
	Context         interface{}

	Status      TransferStatus
	ActualBytes int
}
