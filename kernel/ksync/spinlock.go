// Package ksync provides the interrupt-safe spinlock process-wide
// singletons use to protect their state (see §5). It generalizes the
// teacher's lock-only Spinlock (gopheros' kernel/sync/spinlock.go), written
// for a kernel that had not yet turned interrupts on, into one that also
// disables interrupts on acquisition and restores the prior interrupt-enable
// state on release -- holding the lock across an interrupt that tries to
// reacquire it would otherwise deadlock a single hardware thread.
package ksync

import (
	"sync/atomic"

	"github.com/ktrieu/ugo-os/kernel/cpu"
)

// The following indirections let tests substitute the privileged CPU
// primitives with plain Go state, the same seam style the teacher's own
// tests use for vmm.Map/vmm.EarlyReserveRegion.
var (
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
	interruptsEnabledFn = cpu.InterruptsEnabled
)

// Spinlock is a mutual-exclusion lock for the process-wide singletons (GDT,
// IDT, PIC, console, kernel memory manager). Re-acquiring a Spinlock already
// held by the current (and only) hardware thread deadlocks, exactly as the
// teacher's Spinlock does; there is no support for recursive acquisition.
type Spinlock struct {
	state uint32
}

// Acquire disables interrupts, then busy-waits until the lock is free and
// takes it. It returns whether interrupts were enabled at the moment of
// acquisition, which Release needs to restore the prior state rather than
// unconditionally re-enabling interrupts.
func (l *Spinlock) Acquire() (interruptsWereEnabled bool) {
	interruptsWereEnabled = interruptsEnabledFn()
	disableInterruptsFn()
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		// busy-wait; no cooperative yield exists yet (single hardware
		// thread, no scheduler).
	}
	return interruptsWereEnabled
}

// TryAcquire attempts to take the lock without blocking. On success it
// disables interrupts exactly as Acquire does and returns the prior
// interrupt-enable state plus true; on failure it leaves interrupts
// untouched and returns false.
func (l *Spinlock) TryAcquire() (interruptsWereEnabled bool, acquired bool) {
	wasEnabled := interruptsEnabledFn()
	disableInterruptsFn()
	if atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		return wasEnabled, true
	}
	if wasEnabled {
		enableInterruptsFn()
	}
	return false, false
}

// Release relinquishes the lock and restores the interrupt-enable state
// Acquire observed before taking it.
func (l *Spinlock) Release(interruptsWereEnabled bool) {
	atomic.StoreUint32(&l.state, 0)
	if interruptsWereEnabled {
		enableInterruptsFn()
	}
}
