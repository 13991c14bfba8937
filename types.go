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
	"errors"
	"fmt"
)

const (
	CLA = 0xD4

	INS_GET_APP_CONFIGURATION = 0x01
	INS_GET_PUBLIC_KEY        = 0x02
	INS_SIGN_TRANSACTION      = 0x04

	CHUNK_SIZE = 255

	P1_MORE_CHUNKS = 0x00
	P1_LAST_CHUNK  = 0x80

	P1_NO_CONFIRM = 0x00
	P1_CONFIRM    = 0x01

	HARDENED = 0x80000000

	// DefaultPath is the derivation path the Antelope app signs with.
	DefaultPath = "44'/194'/0'/0/0"

	// SignatureTag prefixes every signature returned by Sign.
	SignatureTag = "SIG_K1_"
)

type LedgerError int

const (
	U2FUnknown                  LedgerError = 1
	U2FBadRequest               LedgerError = 2
	U2FConfigurationUnsupported LedgerError = 3
	U2FDeviceIneligible         LedgerError = 4
	U2FTimeout                  LedgerError = 5
	NoErrors                    LedgerError = 0x9000
	DeviceIsBusy                LedgerError = 0x9001
	ErrorDerivingKeys           LedgerError = 0x6802
	ExecutionError              LedgerError = 0x6400
	WrongLength                 LedgerError = 0x6700
	EmptyBuffer                 LedgerError = 0x6982
	OutputBufferTooSmall        LedgerError = 0x6983
	DataIsInvalid               LedgerError = 0x6a80
	ConditionsNotSatisfied      LedgerError = 0x6985
	TransactionRejected         LedgerError = 0x6986
	BadKeyHandle                LedgerError = 0x6a81
	InvalidP1P2                 LedgerError = 0x6b00
	InstructionNotSupported     LedgerError = 0x6d00
	AppDoesNotSeemToBeOpen      LedgerError = 0x6e01
	UnknownError                LedgerError = 0x6f00
	SignVerifyError             LedgerError = 0x6f01
)

// Sentinel errors surfaced to callers. Compare with errors.Is.
var (
	ErrDeviceNotConnected = errors.New("ledger device not connected")
	ErrAppNotOpen         = errors.New("antelope app not open")
	ErrUserRejected       = errors.New("request rejected on device")
	ErrTimeout            = errors.New("ledger exchange timed out")
	ErrSignFailed         = errors.New("failed to sign")
)

// VersionInfo contains app version information
type VersionInfo struct {
	Major uint8
	Minor uint8
	Patch uint8
}

func (c VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", c.Major, c.Minor, c.Patch)
}

type VersionRequiredError struct {
	Found    VersionInfo
	Required VersionInfo
}

func (e VersionRequiredError) Error() string {
	return fmt.Sprintf("App Version required %s - Version found: %s", e.Required, e.Found)
}

// RequiredAppVersion is the oldest Antelope app this library supports.
var RequiredAppVersion = VersionInfo{Major: 1, Minor: 0, Patch: 0}
