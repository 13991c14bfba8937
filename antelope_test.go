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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ledger Test Mnemonic: equip will roof matter pink blind book anxiety banner elbow sun young

// testPubKeyHex is a valid compressed secp256k1 public key.
const testPubKeyHex = "03cb5a33c61595206294140c45efa8a817533e31aa05ea18343033a0732a677005"

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// mockDevice implements ledger_go.LedgerDevice, recording every command and
// answering through a scripted handler.
type mockDevice struct {
	handler  func(command []byte) ([]byte, error)
	commands [][]byte
	closed   int
}

func (m *mockDevice) Exchange(command []byte) ([]byte, error) {
	m.commands = append(m.commands, append([]byte{}, command...))
	return m.handler(command)
}

func (m *mockDevice) Close() error {
	m.closed++
	return nil
}

// newScriptedDevice answers the three instructions with canned responses.
func newScriptedDevice(version, pubKey, signature []byte) *mockDevice {
	return &mockDevice{
		handler: func(command []byte) ([]byte, error) {
			switch command[1] {
			case INS_GET_APP_CONFIGURATION:
				return version, nil
			case INS_GET_PUBLIC_KEY:
				return append([]byte{byte(len(pubKey))}, pubKey...), nil
			case INS_SIGN_TRANSACTION:
				if command[2] == P1_LAST_CHUNK {
					return append([]byte{byte(len(signature))}, signature...), nil
				}
				return nil, nil
			default:
				return nil, fmt.Errorf("unexpected instruction 0x%02x", command[1])
			}
		},
	}
}

func Test_GetAppConfiguration(t *testing.T) {
	device := newScriptedDevice([]byte{1, 2, 3}, nil, nil)
	app := NewLedgerAntelope(device)

	version, err := app.GetAppConfiguration()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version.String())

	// Unchanged device state yields the identical version again
	again, err := app.GetAppConfiguration()
	require.NoError(t, err)
	assert.Equal(t, version.String(), again.String())

	command := device.commands[0]
	assert.Equal(t, []byte{CLA, INS_GET_APP_CONFIGURATION, 0, 0, 0}, command)
}

func Test_GetAppConfiguration_AppNotOpen(t *testing.T) {
	device := &mockDevice{
		handler: func([]byte) ([]byte, error) {
			return nil, errors.New("[APDU_CODE_CLA_NOT_SUPPORTED] CLA not supported")
		},
	}
	app := NewLedgerAntelope(device)

	_, err := app.GetAppConfiguration()
	assert.ErrorIs(t, err, ErrAppNotOpen)
}

func Test_GetPubKey(t *testing.T) {
	pubKey := mustHex(t, testPubKeyHex)
	device := &mockDevice{
		handler: func(command []byte) ([]byte, error) {
			response := append([]byte{byte(len(pubKey))}, pubKey...)
			// trailing bytes past the declared length must be ignored
			return append(response, 0xDE, 0xAD), nil
		},
	}
	app := NewLedgerAntelope(device)

	got, err := app.GetPubKey(DefaultPath, false)
	require.NoError(t, err)
	assert.Equal(t, pubKey, got)

	serializedPath, err := SerializePath(DefaultPath)
	require.NoError(t, err)

	command := device.commands[0]
	assert.Equal(t, byte(CLA), command[0])
	assert.Equal(t, byte(INS_GET_PUBLIC_KEY), command[1])
	assert.Equal(t, byte(P1_NO_CONFIRM), command[2])
	assert.Equal(t, byte(0), command[3])
	assert.Equal(t, byte(len(serializedPath)), command[4])
	assert.Equal(t, serializedPath, command[5:])

	_, err = app.GetPubKey(DefaultPath, true)
	require.NoError(t, err)
	assert.Equal(t, byte(P1_CONFIRM), device.commands[1][2])
}

func Test_SignTransaction_TwoChunks(t *testing.T) {
	signature := mustHex(t, "a1b2c3d4e5f6")
	device := newScriptedDevice([]byte{1, 2, 3}, nil, signature)
	app := NewLedgerAntelope(device)

	rawTx := make([]byte, 300)
	for i := range rawTx {
		rawTx[i] = byte(i)
	}

	got, err := app.SignTransaction(DefaultPath, rawTx)
	require.NoError(t, err)
	assert.Equal(t, signature, got)

	// priming exchange + two chunks
	require.Len(t, device.commands, 3)

	priming := device.commands[0]
	serializedPath, err := SerializePath(DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, []byte{CLA, INS_SIGN_TRANSACTION, P1_MORE_CHUNKS, 0, byte(len(serializedPath))}, priming[:5])
	assert.Equal(t, serializedPath, priming[5:])

	first := device.commands[1]
	assert.Equal(t, byte(P1_MORE_CHUNKS), first[2])
	assert.Equal(t, 255, len(first[5:]))
	assert.Equal(t, rawTx[:255], first[5:])

	last := device.commands[2]
	assert.Equal(t, byte(P1_LAST_CHUNK), last[2])
	assert.Equal(t, 45, len(last[5:]))
	assert.Equal(t, rawTx[255:], last[5:])
}

func Test_SignTransaction_ChunkCount(t *testing.T) {
	for _, length := range []int{1, 100, 254, 255, 256, 510, 511, 1000} {
		device := newScriptedDevice([]byte{1, 2, 3}, nil, []byte{0x01})
		app := NewLedgerAntelope(device)

		_, err := app.SignTransaction(DefaultPath, make([]byte, length))
		require.NoError(t, err, "length %d", length)

		expectedChunks := (length + CHUNK_SIZE - 1) / CHUNK_SIZE
		chunks := device.commands[1:]
		require.Len(t, chunks, expectedChunks, "length %d", length)

		for i, chunk := range chunks {
			if i == len(chunks)-1 {
				assert.Equal(t, byte(P1_LAST_CHUNK), chunk[2], "length %d", length)
			} else {
				assert.Equal(t, byte(P1_MORE_CHUNKS), chunk[2], "length %d", length)
				assert.Equal(t, CHUNK_SIZE, len(chunk[5:]), "length %d", length)
			}
		}
	}
}

func Test_SignTransaction_EmptyPayload(t *testing.T) {
	device := newScriptedDevice([]byte{1, 2, 3}, nil, []byte{0x01})
	app := NewLedgerAntelope(device)

	_, err := app.SignTransaction(DefaultPath, nil)
	assert.ErrorIs(t, err, ErrSignFailed)

	// only the priming exchange took place
	assert.Len(t, device.commands, 1)
}

func Test_SignTransaction_UserRejected(t *testing.T) {
	device := &mockDevice{
		handler: func(command []byte) ([]byte, error) {
			if command[2] == P1_LAST_CHUNK {
				return nil, errors.New("[APDU_CODE_CONDITIONS_NOT_SATISFIED] Conditions of use not satisfied")
			}
			return nil, nil
		},
	}
	app := NewLedgerAntelope(device)

	_, err := app.SignTransaction(DefaultPath, make([]byte, 10))
	assert.ErrorIs(t, err, ErrUserRejected)
}

func Test_SignatureString(t *testing.T) {
	signature := mustHex(t, "0102030405")
	assert.Equal(t, "SIG_K1_0102030405", SignatureString(signature))
}

// Integration tests below need a Ledger device with the Antelope app open.

func skipWithoutDevice(t *testing.T) {
	t.Helper()
	if os.Getenv("LEDGER_INTEGRATION") == "" {
		t.Skip("set LEDGER_INTEGRATION=1 to run against a connected device")
	}
}

func Test_UserFindLedger(t *testing.T) {
	skipWithoutDevice(t)

	userApp, err := FindLedgerAntelopeApp()
	require.NoError(t, err)
	assert.NotNil(t, userApp)
	defer userApp.Close()
}

func Test_UserGetAppConfiguration(t *testing.T) {
	skipWithoutDevice(t)

	userApp, err := FindLedgerAntelopeApp()
	require.NoError(t, err)
	defer userApp.Close()

	version, err := userApp.GetAppConfiguration()
	require.NoError(t, err)
	fmt.Println(version)
}

func Test_UserGetPublicKey(t *testing.T) {
	skipWithoutDevice(t)

	userApp, err := FindLedgerAntelopeApp()
	require.NoError(t, err)
	defer userApp.Close()

	publicKey, err := userApp.GetPubKey(DefaultPath, false)
	require.NoError(t, err)

	assert.Equal(t, 33, len(publicKey),
		"Public key has wrong length: %x, expected length: %d\n", publicKey, 33)
	fmt.Printf("PUBLIC KEY: %x\n", publicKey)
}

func Test_UserSign(t *testing.T) {
	skipWithoutDevice(t)

	userApp, err := FindLedgerAntelopeApp()
	require.NoError(t, err)
	defer userApp.Close()

	rawTx := make([]byte, 300)
	for i := range rawTx {
		rawTx[i] = byte(i)
	}

	signature, err := userApp.SignTransaction(DefaultPath, rawTx)
	require.NoError(t, err)
	assert.NotEmpty(t, signature)
	fmt.Printf("SIGNATURE: %s\n", SignatureString(signature))
}
