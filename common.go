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
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CheckVersion compares the current version with the required version
func CheckVersion(ver VersionInfo, req VersionInfo) error {
	if ver.Major != req.Major {
		if ver.Major > req.Major {
			return nil
		}
		return NewVersionRequiredError(req, ver)
	}

	if ver.Minor != req.Minor {
		if ver.Minor > req.Minor {
			return nil
		}
		return NewVersionRequiredError(req, ver)
	}

	if ver.Patch >= req.Patch {
		return nil
	}
	return NewVersionRequiredError(req, ver)
}

func NewVersionRequiredError(req VersionInfo, ver VersionInfo) error {
	return &VersionRequiredError{
		Found:    ver,
		Required: req,
	}
}

// SerializePath encodes a BIP32 derivation path into the APDU payload format:
// one count byte followed by a big-endian uint32 per segment. A trailing
// apostrophe marks a hardened segment (index OR 0x80000000). A leading "m/"
// is accepted and ignored.
func SerializePath(path string) ([]byte, error) {
	path = strings.TrimPrefix(path, "m/")
	if path == "" {
		return nil, errors.New(`empty path. (e.g "44'/194'/0'/0/0")`)
	}

	pathArray := strings.Split(path, "/")

	buf := make([]byte, 1+4*len(pathArray))
	buf[0] = byte(len(pathArray))

	for i, child := range pathArray {
		value, err := parsePathSegment(child)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(buf[1+4*i:1+4*(i+1)], value)
	}

	return buf, nil
}

// parsePathSegment tries the segment as a plain index first; on failure it
// strips a trailing hardening marker and retries with the hardened bit set.
func parsePathSegment(child string) (uint32, error) {
	childNumber, err := strconv.ParseUint(child, 10, 32)
	if err == nil {
		if childNumber >= HARDENED {
			return 0, errors.New("incorrect child value (bigger or equal to 0x80000000)")
		}
		return uint32(childNumber), nil
	}

	stripped := strings.TrimSuffix(child, "'")
	if stripped == child {
		return 0, fmt.Errorf(`invalid path: %s is not a number. (e.g "44'/194'/0'/0/0")`, child)
	}

	childNumber, err = strconv.ParseUint(stripped, 10, 32)
	if err != nil {
		return 0, fmt.Errorf(`invalid path: %s is not a number. (e.g "44'/194'/0'/0/0")`, child)
	}
	if childNumber >= HARDENED {
		return 0, errors.New("incorrect child value (bigger or equal to 0x80000000)")
	}

	return uint32(childNumber) | HARDENED, nil
}

// DecodeLengthPrefixed reads a device response whose first byte declares the
// payload length. Bytes beyond the declared length are ignored.
func DecodeLengthPrefixed(response []byte) ([]byte, error) {
	if len(response) == 0 {
		return nil, errors.New("empty response")
	}

	length := int(response[0])
	if len(response) < 1+length {
		return nil, fmt.Errorf("response declares %d payload bytes, only %d present", length, len(response)-1)
	}

	return response[1 : 1+length], nil
}
