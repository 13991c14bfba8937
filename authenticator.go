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
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	ledger_go "github.com/zondax/ledger-go"
)

// DefaultTimeout bounds a single device exchange when Options.Timeout is
// left zero.
const DefaultTimeout = 30 * time.Second

// Placeholder chain and permission used by the default resolver. Real
// deployments should supply a Resolver that looks the account up on-chain
// from the retrieved public key.
const (
	placeholderChainID    = "aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906"
	placeholderAccount    = "ledger"
	placeholderPermission = "active"
)

// SignatureProvider is the two-method contract the session framework calls.
type SignatureProvider interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Sign(ctx context.Context, req SignRequest) (*SignResult, error)
}

type LoginRequest struct {
	// ChainID is the chain the session prefers, optional.
	ChainID string
}

type LoginResult struct {
	ChainID      string
	Account      string
	Permission   string
	PublicKey    string // legacy Antelope form, EOS...
	PublicKeyHex string
}

type SignRequest struct {
	ChainID string
	// Transaction is the serialized transaction, opaque to this layer.
	Transaction []byte
}

type SignResult struct {
	Signatures []string
}

// Resolver maps the public key disclosed by the device to the chain and
// account/permission the session should bind to.
type Resolver func(ctx context.Context, requestedChainID string, pubKey []byte) (chainID, account, permission string, err error)

// Metadata is static display information consumed by the framework UI.
type Metadata struct {
	Name        string
	Description string
	Icon        string
	Homepage    string
	Download    string
}

// Options configures an Authenticator. The zero value selects HID transport,
// the default derivation path, the default timeout and the placeholder
// resolver.
type Options struct {
	// Device is a pre-opened channel reused for every call. The caller owns
	// it; the authenticator never closes it. When nil a fresh channel of the
	// configured kind is opened and closed per call.
	Device ledger_go.LedgerDevice

	// Open overrides the registered opener for Kind. Mostly useful for tests.
	Open Opener

	Kind    TransportKind
	Path    string
	Timeout time.Duration
	Resolve Resolver
}

// Authenticator drives one login or sign conversation with the device at a
// time. Calls are serialized: a Ledger handles a single command stream and
// concurrent opens would race for the same physical device.
type Authenticator struct {
	mu   sync.Mutex
	opts Options
}

var _ SignatureProvider = (*Authenticator)(nil)

func NewAuthenticator(opts Options) *Authenticator {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Resolve == nil {
		opts.Resolve = placeholderResolver
	}
	return &Authenticator{opts: opts}
}

func placeholderResolver(_ context.Context, requestedChainID string, _ []byte) (string, string, string, error) {
	chainID := placeholderChainID
	if requestedChainID != "" {
		chainID = requestedChainID
	}
	return chainID, placeholderAccount, placeholderPermission, nil
}

// ShouldRequestChain reports whether the framework must ask the user to pick
// a chain before login.
func (a *Authenticator) ShouldRequestChain() bool { return true }

// ShouldRequestPermission reports whether the framework must ask the user to
// pick a permission before login.
func (a *Authenticator) ShouldRequestPermission() bool { return true }

func (a *Authenticator) Metadata() Metadata {
	return Metadata{
		Name:        "Ledger",
		Description: "Use your Ledger hardware wallet to sign transactions",
		Icon:        "https://www.ledger.com/wp-content/uploads/2021/11/Ledger_favicon.png",
		Homepage:    "https://www.ledger.com",
		Download:    "https://www.ledger.com/start",
	}
}

// Login asks the device for its public key and resolves the chain and
// account/permission the session should bind to.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	app, release, err := a.acquire(ctx)
	if err != nil {
		return nil, wrapFailure("login", err)
	}
	defer release()

	if _, err := app.GetAppConfiguration(); err != nil {
		return nil, wrapFailure("login", err)
	}

	pubKey, err := app.GetPubKey(a.opts.Path, false)
	if err != nil {
		return nil, wrapFailure("login", err)
	}

	keyString, err := PublicKeyString(pubKey)
	if err != nil {
		return nil, wrapFailure("login", err)
	}

	chainID, account, permission, err := a.opts.Resolve(ctx, req.ChainID, pubKey)
	if err != nil {
		return nil, wrapFailure("login", err)
	}

	return &LoginResult{
		ChainID:      chainID,
		Account:      account,
		Permission:   permission,
		PublicKey:    keyString,
		PublicKeyHex: hex.EncodeToString(pubKey),
	}, nil
}

// Sign streams the request's serialized transaction to the device and
// returns exactly one tagged signature.
func (a *Authenticator) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	app, release, err := a.acquire(ctx)
	if err != nil {
		return nil, wrapFailure("sign", err)
	}
	defer release()

	if _, err := app.GetAppConfiguration(); err != nil {
		return nil, wrapFailure("sign", err)
	}

	signature, err := app.SignTransaction(a.opts.Path, req.Transaction)
	if err != nil {
		return nil, wrapFailure("sign", err)
	}

	return &SignResult{Signatures: []string{SignatureString(signature)}}, nil
}

// acquire hands back an app client over an open channel plus a release that
// is safe to call on every exit path. Channels opened here are closed
// exactly once; a pre-supplied device is left open for the next call.
func (a *Authenticator) acquire(ctx context.Context) (*LedgerAntelope, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	device := a.opts.Device
	release := func() {}

	if device == nil {
		open := a.opts.Open
		if open == nil {
			opened, err := OpenTransport(a.opts.Kind)
			if err != nil {
				return nil, nil, err
			}
			device = opened
		} else {
			opened, err := open()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrDeviceNotConnected, err)
			}
			device = opened
		}

		toClose := device
		var once sync.Once
		release = func() {
			once.Do(func() {
				if err := toClose.Close(); err != nil {
					log.Warnf("closing ledger transport: %v", err)
				}
			})
		}
	}

	wrapped := &deviceWithTimeout{ctx: ctx, device: device, timeout: a.opts.Timeout}
	return NewLedgerAntelope(wrapped), release, nil
}

var recognizedErrors = []error{
	ErrDeviceNotConnected,
	ErrAppNotOpen,
	ErrUserRejected,
	ErrTimeout,
	ErrSignFailed,
}

// wrapFailure leaves recognized errors untouched and wraps everything else
// in a generic failed-to-login/sign error.
func wrapFailure(op string, err error) error {
	for _, sentinel := range recognizedErrors {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
