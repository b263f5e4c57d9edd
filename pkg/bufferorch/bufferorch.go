// Package bufferorch implements the buffer pool/profile/binding subsystem
// (spec.md §4.8, C12): shared buffer pools, profiles built on top of a pool,
// and their assignment to queues, priority groups, and per-port
// ingress/egress profile lists. Grounded directly on SPEC_FULL.md's DOMAIN
// STACK/§4.8 description of the shared create/set/remove dispatch shape
// (there is no CONFIG_DB buffer model in the teacher itself), with field
// vocabulary (`size`, `mode`, `xon`, `xoff`, `dynamic_th`, `static_th`,
// `pool`, `profile`, `profile_list`) taken from
// original_source/sonic-swss/orchagent/bufferorch.h.
package bufferorch

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sonic-net/go-orchagent/pkg/orch"
	"github.com/sonic-net/go-orchagent/pkg/portorch"
	"github.com/sonic-net/go-orchagent/pkg/sad"
	"github.com/sonic-net/go-orchagent/pkg/util"
)

// ErrRetry marks an entry as waiting on a referenced pool/profile that
// doesn't exist yet.
var ErrRetry = fmt.Errorf("bufferorch: unresolved dependency")

// Orch is the buffer subsystem instance.
type Orch struct {
	mu sync.Mutex

	driver sad.Driver
	ports  *portorch.Catalog

	pools    map[string]sad.Handle
	profiles map[string]sad.Handle
}

// New constructs an empty buffer subsystem.
func New(driver sad.Driver, ports *portorch.Catalog) *Orch {
	return &Orch{
		driver:   driver,
		ports:    ports,
		pools:    make(map[string]sad.Handle),
		profiles: make(map[string]sad.Handle),
	}
}

// AddPool creates or replaces a buffer pool (BUFFER_POOL). poolType is
// "ingress"/"egress"; mode is "dynamic"/"static".
func (o *Orch) AddPool(name, poolType, mode string, size int) error {
	attrs := sad.Attrs{"type": poolType, "mode": mode, "size": size}

	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.pools[name]; ok {
		if err := o.driver.RemoveBufferPool(old); err != nil {
			return sad.Call("RemoveBufferPool", err)
		}
	}
	h, err := o.driver.CreateBufferPool(attrs)
	if err != nil {
		return sad.Call("CreateBufferPool", err)
	}
	o.pools[name] = h
	return nil
}

// RemovePool destroys a buffer pool. Any profile still referencing it
// should have been removed first; the SAD call itself will fail if the
// pool is still in use, surfacing as a HardwareError.
func (o *Orch) RemovePool(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.pools[name]
	if !ok {
		return nil
	}
	if err := o.driver.RemoveBufferPool(h); err != nil {
		return sad.Call("RemoveBufferPool", err)
	}
	delete(o.pools, name)
	return nil
}

// AddProfile creates or replaces a buffer profile (BUFFER_PROFILE) built on
// the pool named by poolRef ("[BUFFER_POOL:name]"). staticThSet
// distinguishes "static_th present with value 0" from "field absent" the
// same way qosorch.SetQueue distinguishes an explicit clear from no change.
func (o *Orch) AddProfile(name, poolRef string, xon, xoff, dynamicTh int, staticTh int, staticThSet bool) error {
	table, poolName, err := orch.ParseReference(poolRef)
	if err != nil || table != "BUFFER_POOL" {
		return util.NewParseError("BUFFER_PROFILE", name, "pool", poolRef, "[BUFFER_POOL:name]")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	poolHandle, ok := o.pools[poolName]
	if !ok {
		return ErrRetry
	}

	attrs := sad.Attrs{"pool_id": poolHandle}
	if xon > 0 {
		attrs["xon"] = xon
	}
	if xoff > 0 {
		attrs["xoff"] = xoff
	}
	if staticThSet {
		attrs["static_th"] = staticTh
	} else {
		attrs["dynamic_th"] = dynamicTh
	}

	if old, ok := o.profiles[name]; ok {
		if err := o.driver.RemoveBufferProfile(old); err != nil {
			return sad.Call("RemoveBufferProfile", err)
		}
	}
	h, err := o.driver.CreateBufferProfile(attrs)
	if err != nil {
		return sad.Call("CreateBufferProfile", err)
	}
	o.profiles[name] = h
	return nil
}

// RemoveProfile destroys a buffer profile.
func (o *Orch) RemoveProfile(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.profiles[name]
	if !ok {
		return nil
	}
	if err := o.driver.RemoveBufferProfile(h); err != nil {
		return sad.Call("RemoveBufferProfile", err)
	}
	delete(o.profiles, name)
	return nil
}

func (o *Orch) resolveProfile(ref string) (sad.Handle, error) {
	table, name, err := orch.ParseReference(ref)
	if err != nil || table != "BUFFER_PROFILE" {
		return "", fmt.Errorf("bufferorch: malformed profile reference %q", ref)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.profiles[name]
	if !ok {
		return "", ErrRetry
	}
	return h, nil
}

// queueHandle and pgHandle synthesize stable per-port-index handles, the
// same way qosorch does for queues: the SAD surface has no "get queue/PG
// OID for port+index" call, so the handle is derived deterministically
// rather than round-tripped through the driver. The two packages derive
// their handles independently — nothing requires bufferorch's and
// qosorch's synthetic handles to match, since fakesad only compares
// handles for equality within whichever package produced them.
func queueHandle(port sad.Handle, idx int) sad.Handle { return sad.Handle(fmt.Sprintf("%s:queue%d", port, idx)) }
func pgHandle(port sad.Handle, idx int) sad.Handle    { return sad.Handle(fmt.Sprintf("%s:pg%d", port, idx)) }

// SetQueueProfile binds profileRef to one port queue (QUEUE table, buffer
// view).
func (o *Orch) SetQueueProfile(portName string, idx int, profileRef string) error {
	port, ok := o.ports.GetPort(portName)
	if !ok {
		return ErrRetry
	}
	h, err := o.resolveProfile(profileRef)
	if err != nil {
		return err
	}
	if err := o.driver.SetQueueBufferProfile(queueHandle(port.SadPort, idx), h); err != nil {
		return sad.Call("SetQueueBufferProfile", err)
	}
	return nil
}

// SetPgProfile binds profileRef to one port priority group (PG table).
func (o *Orch) SetPgProfile(portName string, idx int, profileRef string) error {
	port, ok := o.ports.GetPort(portName)
	if !ok {
		return ErrRetry
	}
	h, err := o.resolveProfile(profileRef)
	if err != nil {
		return err
	}
	if err := o.driver.SetPgBufferProfile(pgHandle(port.SadPort, idx), h); err != nil {
		return sad.Call("SetPgBufferProfile", err)
	}
	return nil
}

// SetPortProfileList binds an ordered list of profile references to a
// port's ingress or egress stage (BUFFER_PORT_INGRESS/EGRESS_PROFILE_LIST).
// Every reference must resolve before the call proceeds.
func (o *Orch) SetPortProfileList(portName string, ingress bool, profileRefs []string) error {
	port, ok := o.ports.GetPort(portName)
	if !ok {
		return ErrRetry
	}
	handles := make([]sad.Handle, 0, len(profileRefs))
	for _, ref := range profileRefs {
		h, err := o.resolveProfile(ref)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}
	if err := o.driver.SetPortBufferProfileList(port.SadPort, ingress, handles); err != nil {
		return sad.Call("SetPortBufferProfileList", err)
	}
	return nil
}

// splitIndexKey parses a "port:index" QUEUE/PG table key.
func splitIndexKey(key string) (port string, idx int, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return parts[0], n, true
}
