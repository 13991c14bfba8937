/*******************************************************************************
*   (c) 2018 - 2024 Zondax AG
*
*  Licensed under the Apache License, Version 2.0 (the "License");
*  you may not use this file except in compliance with the License.
*  You may obtain a copy of the License at
*
*      http://www.apache.org/licenses/LICENSE-2.0
*
*  Unless required by applicable law or agreed to in writing, software
*  distributed under the License is distributed on an "AS IS" BASIS,
*  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
*  See the License for the specific language governing permissions and
*  limitations under the License.
********************************************************************************/

package ledger_antelope_go

import (
	"context"
	"fmt"
	"sync"
	"time"

	ledger_go "github.com/zondax/ledger-go"
)

// TransportKind selects the channel used to reach the device.
type TransportKind int

const (
	TransportHID TransportKind = iota
	TransportU2F
	TransportBLE
	TransportSpeculos
)

func (k TransportKind) String() string {
	switch k {
	case TransportHID:
		return "hid"
	case TransportU2F:
		return "u2f"
	case TransportBLE:
		return "ble"
	case TransportSpeculos:
		return "speculos"
	default:
		return fmt.Sprintf("transport(%d)", int(k))
	}
}

// Opener opens a channel to a device of one transport kind.
type Opener func() (ledger_go.LedgerDevice, error)

var (
	openersMu sync.RWMutex
	openers   = map[TransportKind]Opener{
		TransportHID: openHID,
	}
)

// RegisterOpener installs the opener for a transport kind. HID is built in;
// U2F, BLE and Speculos channels must be supplied by the embedding
// application.
func RegisterOpener(kind TransportKind, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[kind] = open
}

func openHID() (ledger_go.LedgerDevice, error) {
	admin := ledger_go.NewLedgerAdmin()
	return admin.Connect(0)
}

// OpenTransport opens a channel of the given kind. Every failure mode
// (no device, permission denied, kind not available on this platform) is
// reported as ErrDeviceNotConnected.
func OpenTransport(kind TransportKind) (ledger_go.LedgerDevice, error) {
	openersMu.RLock()
	open := openers[kind]
	openersMu.RUnlock()

	if open == nil {
		return nil, fmt.Errorf("%w: no opener registered for %s transport", ErrDeviceNotConnected, kind)
	}

	device, err := open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotConnected, err)
	}

	return device, nil
}

// deviceWithTimeout bounds every exchange by the configured timeout and the
// call's context. The underlying exchange is not interruptible; on expiry
// the device keeps the command in flight and the response is discarded.
type deviceWithTimeout struct {
	ctx     context.Context
	device  ledger_go.LedgerDevice
	timeout time.Duration
}

type exchangeResult struct {
	response []byte
	err      error
}

func (d *deviceWithTimeout) Exchange(command []byte) ([]byte, error) {
	done := make(chan exchangeResult, 1)
	go func() {
		response, err := d.device.Exchange(command)
		done <- exchangeResult{response, err}
	}()

	select {
	case result := <-done:
		return result.response, result.err
	case <-d.ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, d.ctx.Err())
	case <-time.After(d.timeout):
		return nil, ErrTimeout
	}
}

func (d *deviceWithTimeout) Close() error {
	return d.device.Close()
}
