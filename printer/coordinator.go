package printer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/usbhost/printerbridge/hoststack"
)

// DefaultTransferTimeout bounds the wait for a transfer's completion
// callback.
const DefaultTransferTimeout = 5 * time.Second

type jobState int

const (
	jobIdle jobState = iota
	jobClaimed
	jobSubmitted
	jobCompleted
	jobTimedOut
)

// Coordinator sends print jobs to a discovered printer. One job runs at a
// time; concurrent SendJob callers are serialized. The interface is claimed
// for the duration of a job and released exactly once per job, whichever of
// the completion callback and the timeout path finishes it.
type Coordinator struct {
	host    hoststack.Host
	timeout time.Duration

	jobMtx sync.Mutex

	// Per-job state, guarded by stateMtx. The callback runs on a host
	// goroutine concurrent with the submitter.
	stateMtx sync.Mutex
	state    jobState
	released bool
	status   hoststack.TransferStatus
	actual   int
}

func NewCoordinator(host hoststack.Host, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	return &Coordinator{host: host, timeout: timeout}
}

// SendJob transmits payload over the device's bulk-OUT endpoint and blocks
// until the transfer completes or the timeout elapses. The completion
// status recorded by the host is propagated: a job that does not time out
// but whose transfer failed returns ErrTransferFailed.
func (c *Coordinator) SendJob(dev *Device, payload []byte) error {
	c.jobMtx.Lock()
	defer c.jobMtx.Unlock()

	if dev == nil || dev.dev == nil {
		log.Error("No printer device available")
		return ErrNotReady
	}
	if !dev.Usable() {
		log.Error("No valid bulk OUT endpoint")
		return ErrNotReady
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	log.WithFields(log.Fields{
		"interface": dev.interfaceNumber,
		"bulk_out":  dev.bulkOut,
		"size":      humanize.Bytes(uint64(len(payload))),
	}).Info("Starting print job")

	dev.drainDone()
	c.stateMtx.Lock()
	c.state = jobIdle
	c.released = false
	c.stateMtx.Unlock()

	if err := c.host.ClaimInterface(dev.client, dev.dev, dev.interfaceNumber, 0); err != nil {
		log.WithError(err).Error("Failed to claim printer interface")
		return fmt.Errorf("%w: %v", ErrClaimFailed, err)
	}
	c.setState(jobClaimed)

	transfer, err := c.host.AllocateTransfer(len(payload))
	if err != nil {
		log.WithError(err).Error("Failed to allocate transfer")
		c.releaseOnce(dev)
		return fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	transfer.Device = dev.dev
	transfer.EndpointAddress = dev.bulkOut
	transfer.NumBytes = len(payload)
	copy(transfer.Buffer, payload)
	transfer.Callback = func(t *hoststack.Transfer) {
		c.onTransferDone(dev, t)
	}

	// Submitted state is entered before the submit call: the callback may
	// fire before SubmitTransfer returns and must not have its completion
	// transition overwritten.
	c.setState(jobSubmitted)
	if err := c.host.SubmitTransfer(transfer); err != nil {
		log.WithError(err).Error("Failed to submit transfer")
		c.setState(jobClaimed)
		c.host.FreeTransfer(transfer)
		c.releaseOnce(dev)
		return fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	select {
	case <-dev.done:
		return c.finishJob()
	case <-time.After(c.timeout):
		c.stateMtx.Lock()
		if c.state == jobSubmitted {
			c.state = jobTimedOut
			c.stateMtx.Unlock()
			log.Error("Transfer timeout")
			c.releaseOnce(dev)
			return ErrTimeout
		}
		// The callback won the race with the timer; consume its signal.
		c.stateMtx.Unlock()
		<-dev.done
		return c.finishJob()
	}
}

func (c *Coordinator) finishJob() error {
	c.stateMtx.Lock()
	status, actual := c.status, c.actual
	c.stateMtx.Unlock()
	if status != hoststack.TransferCompleted {
		return fmt.Errorf("%w: %v", ErrTransferFailed, status)
	}
	log.WithField("sent", humanize.Bytes(uint64(actual))).Info("Print job completed")
	return nil
}

// onTransferDone is the completion callback. It runs on a host goroutine:
// record the outcome, free the transfer, release the interface unless the
// timeout path already did, then give the completion signal.
func (c *Coordinator) onTransferDone(dev *Device, t *hoststack.Transfer) {
	if t.Status == hoststack.TransferCompleted {
		log.WithField("sent", humanize.Bytes(uint64(t.ActualBytes))).Debug("Print transfer completed")
	} else {
		log.WithField("status", t.Status).Error("Print transfer failed")
	}

	c.stateMtx.Lock()
	c.status = t.Status
	c.actual = t.ActualBytes
	late := c.state == jobTimedOut
	if !late {
		c.state = jobCompleted
	}
	c.stateMtx.Unlock()

	c.host.FreeTransfer(t)
	if !late {
		c.releaseOnce(dev)
	}
	dev.signalDone()
}

func (c *Coordinator) setState(state jobState) {
	c.stateMtx.Lock()
	c.state = state
	c.stateMtx.Unlock()
}

// releaseOnce releases the claimed interface if this job still holds it.
func (c *Coordinator) releaseOnce(dev *Device) {
	c.stateMtx.Lock()
	if c.released {
		c.stateMtx.Unlock()
		return
	}
	c.released = true
	c.stateMtx.Unlock()
	if err := c.host.ReleaseInterface(dev.client, dev.dev, dev.interfaceNumber); err != nil {
		log.WithError(err).Error("Failed to release printer interface")
	}
}
