// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package evse

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

// State paths touched by the controller.
const (
	PathSlots           = "evse/slots"
	PathIndicatorLED    = "evse/indicator_led"
	PathOverrideEnergy  = "charge_limits/override_energy"
	PathPowerManager    = "power_manager/state"
	PathExternalControl = "power_manager/external_control"
	PathMeterValues     = "meter/values"
)

var (
	// ErrUnavailable is returned when the record a command acts on does
	// not exist.
	ErrUnavailable = errors.New("evse: record not available")

	// ErrExternalControl is returned when phase switching is not under
	// external control.
	ErrExternalControl = errors.New("evse: external control not available")
)

// Controller applies commands to the state store. All methods are safe
// for concurrent use.
type Controller struct {
	store  *state.Store
	logger *slog.Logger
	reboot func(reason string)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRebootHook sets the function called on a reboot request.
func WithRebootHook(fn func(reason string)) ControllerOption {
	return func(c *Controller) {
		c.reboot = fn
	}
}

// NewController creates a controller on top of store.
func NewController(store *state.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetModbusEnabled opens or closes the Modbus TCP enable slot.
func (c *Controller) SetModbusEnabled(enabled bool) error {
	var current uint32
	if enabled {
		current = MaxCurrent
	}
	return c.setSlotCurrent(SlotModbusTCPEnable, current)
}

// SetModbusCurrent sets the Modbus TCP slot current in mA.
func (c *Controller) SetModbusCurrent(current uint32) error {
	return c.setSlotCurrent(SlotModbusTCP, min(current, MaxCurrent))
}

// StartCharging releases the autostart button slot.
func (c *Controller) StartCharging() error {
	return c.setSlotCurrent(SlotAutostartButton, MaxCurrent)
}

// StopCharging blocks the autostart button slot.
func (c *Controller) StopCharging() error {
	return c.setSlotCurrent(SlotAutostartButton, 0)
}

func (c *Controller) setSlotCurrent(slot int, current uint32) error {
	r := c.store.Record(PathSlots)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, PathSlots)
	}

	changed, err := r.Update(func(v state.Value) (state.Value, error) {
		return v.WithIndex(slot, v.Index(slot).With("max_current", state.Uint(uint64(current))))
	})
	if err != nil {
		return fmt.Errorf("evse: slot %d: %w", slot, err)
	}
	if changed {
		c.logger.Debug("charging slot updated", slog.Int("slot", slot), slog.Uint64("max_current", uint64(current)))
	}
	return nil
}

// SetIndicatorLED sets the front LED indication for duration ms.
func (c *Controller) SetIndicatorLED(indication int32, duration uint32) error {
	if err := ValidateLED(indication, duration); err != nil {
		return err
	}
	c.store.Register(PathIndicatorLED, state.Object(map[string]state.Value{
		"indication": state.Int(int64(indication)),
		"duration":   state.Uint(uint64(duration)),
	}))
	return nil
}

// OverrideEnergy replaces the energy limit of the running charge, in Wh.
func (c *Controller) OverrideEnergy(wh uint32) error {
	c.store.Register(PathOverrideEnergy, state.Object(map[string]state.Value{
		"energy_wh": state.Uint(uint64(wh)),
	}))
	return nil
}

// UpdateExternalControl requests a switch to 1 or 3 phases.
func (c *Controller) UpdateExternalControl(phases uint32) error {
	if phases != 1 && phases != 3 {
		return fmt.Errorf("evse: unsupported phase count %d", phases)
	}
	pm := c.store.Record(PathPowerManager)
	if pm == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, PathPowerManager)
	}
	if ec := pm.Get().Get("external_control").AsUint(); ec != 0 {
		return fmt.Errorf("%w: state %d", ErrExternalControl, ec)
	}

	r := c.store.Record(PathExternalControl)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, PathExternalControl)
	}
	r.SetField("phases_wanted", state.Uint(uint64(phases)))
	return nil
}

// ResetMeter clears the relative energy counter.
func (c *Controller) ResetMeter() error {
	r := c.store.Record(PathMeterValues)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, PathMeterValues)
	}
	r.SetField("energy_rel", state.Float(0))
	return nil
}

// Reboot hands the request to the reboot hook.
func (c *Controller) Reboot(reason string) {
	c.logger.Info("reboot requested", slog.String("reason", reason))
	if c.reboot != nil {
		c.reboot(reason)
	}
}
