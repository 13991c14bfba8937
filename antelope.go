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
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ledger_go "github.com/zondax/ledger-go"
)

// LedgerAntelope represents a connection to the Antelope app in a Ledger device
type LedgerAntelope struct {
	api     ledger_go.LedgerDevice
	version VersionInfo
}

// NewLedgerAntelope wraps an already open device. The caller keeps ownership
// of the device; Close forwards to it.
func NewLedgerAntelope(device ledger_go.LedgerDevice) *LedgerAntelope {
	return &LedgerAntelope{api: device}
}

// FindLedgerAntelopeApp finds the Antelope app running in a ledger device
func FindLedgerAntelopeApp() (_ *LedgerAntelope, rerr error) {
	device, err := OpenTransport(TransportHID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rerr != nil {
			device.Close()
		}
	}()

	app := NewLedgerAntelope(device)
	appVersion, err := app.GetAppConfiguration()
	if err != nil {
		return nil, err
	}

	if err := CheckVersion(*appVersion, RequiredAppVersion); err != nil {
		return nil, err
	}

	return app, nil
}

// Close closes the connection with the Antelope app
func (ledger *LedgerAntelope) Close() error {
	return ledger.api.Close()
}

// GetAppConfiguration returns the version of the Antelope app currently open
// on the device. Any exchange failure means the app is not reachable (wrong
// app open, device locked) and is reported as ErrAppNotOpen.
func (ledger *LedgerAntelope) GetAppConfiguration() (*VersionInfo, error) {
	message := []byte{CLA, INS_GET_APP_CONFIGURATION, 0, 0, 0}
	response, err := ledger.exchange(message)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAppNotOpen, err)
	}

	if len(response) < 3 {
		return nil, errors.New("invalid response")
	}

	ledger.version = VersionInfo{
		Major: response[0],
		Minor: response[1],
		Patch: response[2],
	}

	return &ledger.version, nil
}

// GetPubKey returns the public key for the given derivation path. When show
// is set the device additionally prompts the user to confirm the key
// on-screen.
func (ledger *LedgerAntelope) GetPubKey(path string, show bool) ([]byte, error) {
	serializedPath, err := SerializePath(path)
	if err != nil {
		return nil, err
	}

	p1 := byte(P1_NO_CONFIRM)
	if show {
		p1 = byte(P1_CONFIRM)
	}

	header := []byte{CLA, INS_GET_PUBLIC_KEY, p1, 0, byte(len(serializedPath))}
	message := append(header, serializedPath...)

	response, err := ledger.exchange(message)
	if err != nil {
		return nil, err
	}

	return DecodeLengthPrefixed(response)
}

// SignTransaction streams a serialized transaction to the device and returns
// the raw signature bytes. The derivation path is sent first as a priming
// exchange; the transaction follows in chunks of at most CHUNK_SIZE bytes,
// the final chunk marked with P1_LAST_CHUNK. The device accumulates the
// chunks internally and only the final response carries the signature.
func (ledger *LedgerAntelope) SignTransaction(path string, rawTx []byte) ([]byte, error) {
	serializedPath, err := SerializePath(path)
	if err != nil {
		return nil, err
	}

	header := []byte{CLA, INS_SIGN_TRANSACTION, P1_MORE_CHUNKS, 0, byte(len(serializedPath))}
	if _, err := ledger.exchange(append(header, serializedPath...)); err != nil {
		return nil, err
	}

	var signature []byte
	for i := 0; i < len(rawTx); i += CHUNK_SIZE {
		end := i + CHUNK_SIZE
		p1 := byte(P1_MORE_CHUNKS)
		if end >= len(rawTx) {
			end = len(rawTx)
			p1 = P1_LAST_CHUNK
		}
		chunk := rawTx[i:end]

		header := []byte{CLA, INS_SIGN_TRANSACTION, p1, 0, byte(len(chunk))}
		response, err := ledger.exchange(append(header, chunk...))
		if err != nil {
			return nil, err
		}

		if p1 == P1_LAST_CHUNK {
			signature, err = DecodeLengthPrefixed(response)
			if err != nil {
				return nil, err
			}
		}
	}

	if signature == nil {
		return nil, ErrSignFailed
	}

	return signature, nil
}

// SignatureString renders raw signature bytes in the tagged textual form.
func SignatureString(signature []byte) string {
	return SignatureTag + hex.EncodeToString(signature)
}

func (ledger *LedgerAntelope) exchange(message []byte) ([]byte, error) {
	log.Debugf("[APDU] => %x", message)

	response, err := ledger.api.Exchange(message)
	if err != nil {
		log.Debugf("[APDU] <= error: %v", err)
		return nil, mapExchangeError(err)
	}

	log.Debugf("[APDU] <= %x", response)
	return response, nil
}

// mapExchangeError recognizes the status words the device reports when the
// user declines a request on-screen.
func mapExchangeError(err error) error {
	msg := err.Error()
	if strings.HasPrefix(msg, "[APDU_CODE_CONDITIONS_NOT_SATISFIED]") ||
		strings.HasPrefix(msg, "[APDU_CODE_COMMAND_NOT_ALLOWED]") {
		return fmt.Errorf("%w: %v", ErrUserRejected, err)
	}
	return err
}
