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
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // legacy key format requires it
)

// PublicKeyString renders a secp256k1 public key returned by the device in
// the legacy Antelope textual form: "EOS" followed by the base58 encoding of
// the key bytes and a 4-byte ripemd160 checksum. The key is parsed first so
// a malformed device response is rejected here rather than downstream.
func PublicKeyString(pubKey []byte) (string, error) {
	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return "", fmt.Errorf("invalid public key from device: %w", err)
	}

	hasher := ripemd160.New()
	hasher.Write(pubKey)
	checksum := hasher.Sum(nil)[:4]

	payload := make([]byte, 0, len(pubKey)+4)
	payload = append(payload, pubKey...)
	payload = append(payload, checksum...)

	return "EOS" + base58.Encode(payload), nil
}
